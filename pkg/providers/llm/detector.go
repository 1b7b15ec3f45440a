package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/konclui/speedbridge/pkg/bridge"
)

const sdrDetectorPrompt = `Você é um detector de atendimento humano em ligações telefônicas.
Receberá a transcrição das primeiras palavras ditas ao atender uma chamada.
Decida se quem falou é um HUMANO REAL ou uma CAIXA POSTAL / atendimento gravado.
Seja rigoroso: mensagens como "deixe seu recado após o sinal", "você ligou para",
"caixa postal", menus de URA e qualquer fala claramente gravada são caixa postal.
Na dúvida, classifique como caixa postal.
Responda SOMENTE com JSON no formato {"is_human": bool, "confidence": 0.0-1.0, "reason": "..."}.`

const leadDetectorPrompt = `Você é um detector de fala humana real em gravações telefônicas.
Receberá a transcrição do lado do lead em uma ligação.
Decida se há fala de um HUMANO REAL (não toques de chamada, ruído, caixa postal ou
mensagens do sistema). Na dúvida, classifique como não-humano.
Responda SOMENTE com JSON no formato {"is_human": bool, "confidence": 0.0-1.0, "reason": "..."}.`

// quickConfirmationPatterns are the short affirmations and greetings that
// confirm a live SDR without a model round-trip. The list is load-bearing
// for bridge latency; matching is case-insensitive with punctuation
// stripped first.
var quickConfirmationPatterns = []string{
	"ok", "okay", "sim", "alô", "alo", "oi", "olá", "ola",
	"pode", "pode falar", "pode mandar", "manda", "manda aí",
	"confirmado", "confirmo", "beleza", "blz", "certo", "claro",
	"positivo", "bora", "opa", "fala", "diga", "pronto",
	"tá", "ta", "tá bom", "tudo bem", "uhum", "aham", "pois não",
}

// maxQuickConfirmationLen keeps long recorded greetings out of the fast
// path even when they open with an affirmation word.
const maxQuickConfirmationLen = 40

var (
	punctRe        = regexp.MustCompile(`[.,!?;:…"'()\[\]{}\-]`)
	bracketNoiseRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|<[^>]*>`)
	nonSpeechRe    = regexp.MustCompile(`[^\pL\pN\s.,!?;:'-]`)
	multiSpaceRe   = regexp.MustCompile(`\s+`)
	noiseOnlyRes   = []*regexp.Regexp{
		regexp.MustCompile(`^(?i)(hm+|uh+|ah+|eh+|mm+)$`),
		regexp.MustCompile(`^[\s\pN.,!?;:'-]*$`),
	}
)

// Detector decides human-vs-voicemail and real-speech-vs-noise through a
// chat model, with local short-circuits for the common cases.
type Detector struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

func NewDetector(apiKey string) *Detector {
	return &Detector{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/chat/completions",
		model:  "gpt-4o-mini",
		client: http.DefaultClient,
	}
}

// ClassifySDRSpeech decides whether the SDR's first words came from a live
// human. The fast path never touches the network; every failure defaults
// to voicemail, the safe outcome.
func (d *Detector) ClassifySDRSpeech(ctx context.Context, text, apiKey string) bridge.DetectionResult {
	if IsQuickConfirmation(text) {
		return bridge.DetectionResult{
			Answered:   true,
			Confidence: 0.99,
			Reason:     "quick_confirmation_pattern",
			FirstWords: text,
		}
	}

	result, err := d.ask(ctx, sdrDetectorPrompt, text, apiKey)
	if err != nil {
		return bridge.DetectionResult{
			Answered:   false,
			Confidence: 0,
			Reason:     fmt.Sprintf("error: %v", err),
			FirstWords: text,
		}
	}
	result.FirstWords = text
	return result
}

// ClassifyLeadSpeech decides whether the lead-side transcript contains a
// real person. Local pre-checks cover the empty, announcement-only and
// ring-artifact cases before any model call.
func (d *Detector) ClassifyLeadSpeech(ctx context.Context, text, apiKey string) bridge.DetectionResult {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return bridge.DetectionResult{Answered: false, Confidence: 1.0, Reason: "no_transcript"}
	}
	if isAnnouncementOnly(trimmed) {
		return bridge.DetectionResult{Answered: false, Confidence: 0.95, Reason: "only_bianca_messages"}
	}
	if !IsRealHumanSpeech(trimmed) {
		return bridge.DetectionResult{Answered: false, Confidence: 0.9, Reason: "noise_or_artifacts"}
	}

	result, err := d.ask(ctx, leadDetectorPrompt, trimmed, apiKey)
	if err != nil {
		return bridge.DetectionResult{
			Answered:   false,
			Confidence: 0,
			Reason:     fmt.Sprintf("error: %v", err),
		}
	}
	return result
}

func (d *Detector) Name() string {
	return "openai-detector"
}

// IsQuickConfirmation reports whether text is one of the short affirmations
// that confirm a live speaker without a model call.
func IsQuickConfirmation(text string) bool {
	normalized := normalize(text)
	if normalized == "" || len(normalized) > maxQuickConfirmationLen {
		return false
	}
	for _, pattern := range quickConfirmationPatterns {
		if normalized == pattern || strings.HasPrefix(normalized, pattern+" ") {
			return true
		}
	}
	return false
}

// CleanRingArtifacts strips transcription artifacts of ring-back tone:
// words with long repeated-letter runs ("BIIING"), bracketed noise tags
// and non-speech symbols. The result is stable under re-application.
func CleanRingArtifacts(text string) string {
	cleaned := bracketNoiseRe.ReplaceAllString(text, " ")
	cleaned = dropRepeatedRunWords(cleaned)
	cleaned = nonSpeechRe.ReplaceAllString(cleaned, " ")
	cleaned = multiSpaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// dropRepeatedRunWords removes words containing the same letter three or
// more times in a row ("BIIING", "RIIING", "aaaa").
func dropRepeatedRunWords(text string) string {
	words := strings.Fields(text)
	kept := words[:0]
	for _, w := range words {
		if !hasRepeatedRun(w) {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

func hasRepeatedRun(word string) bool {
	var prev rune
	run := 1
	for _, r := range strings.ToLower(word) {
		if r == prev {
			run++
			if run >= 3 {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

// IsRealHumanSpeech applies the noise heuristic: after artifact cleaning
// the remainder must be at least 3 characters and not a pure-noise token.
func IsRealHumanSpeech(text string) bool {
	cleaned := CleanRingArtifacts(text)
	if len([]rune(cleaned)) < 3 {
		return false
	}
	for _, re := range noiseOnlyRes {
		if re.MatchString(cleaned) {
			return false
		}
	}
	return true
}

// isAnnouncementOnly reports whether every sentence of the transcript is a
// known announcement phrase, meaning the lead never actually spoke.
func isAnnouncementOnly(text string) bool {
	if !bridge.MatchesAnnouncement(text) {
		return false
	}
	parts := regexp.MustCompile(`[.!?\n]+`).Split(text, -1)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !bridge.MatchesAnnouncement(p) {
			return false
		}
	}
	return true
}

func normalize(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	stripped := punctRe.ReplaceAllString(lowered, "")
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(stripped, " "))
}

func (d *Detector) ask(ctx context.Context, system, text, apiKey string) (bridge.DetectionResult, error) {
	if apiKey == "" {
		apiKey = d.apiKey
	}

	payload := map[string]interface{}{
		"model":       d.model,
		"temperature": 0,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": text},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return bridge.DetectionResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.url, bytes.NewReader(body))
	if err != nil {
		return bridge.DetectionResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return bridge.DetectionResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return bridge.DetectionResult{}, fmt.Errorf("detector error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return bridge.DetectionResult{}, err
	}
	if len(result.Choices) == 0 {
		return bridge.DetectionResult{}, fmt.Errorf("no choices returned from detector")
	}

	return parseVerdict(result.Choices[0].Message.Content)
}

// parseVerdict extracts the first balanced {...} block from the model
// output and decodes the verdict.
func parseVerdict(content string) (bridge.DetectionResult, error) {
	start := strings.Index(content, "{")
	if start < 0 {
		return bridge.DetectionResult{}, fmt.Errorf("no JSON object in detector response")
	}

	depth := 0
	end := -1
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
		if end > 0 {
			break
		}
	}
	if end < 0 {
		return bridge.DetectionResult{}, fmt.Errorf("unbalanced JSON object in detector response")
	}

	var verdict struct {
		IsHuman    bool    `json:"is_human"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(content[start:end]), &verdict); err != nil {
		return bridge.DetectionResult{}, fmt.Errorf("invalid detector JSON: %w", err)
	}

	return bridge.DetectionResult{
		Answered:   verdict.IsHuman,
		Confidence: verdict.Confidence,
		Reason:     verdict.Reason,
	}, nil
}
