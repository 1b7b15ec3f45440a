package callflow

import (
	"fmt"
	"sort"
	"strings"
)

// Telephony control documents. The provider fetches one of these at each
// control URL; every interpolated string is XML-escaped.

const (
	sayVoice    = "Polly.Camila-Neural"
	sayLanguage = "pt-BR"
)

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}

type twimlBuilder struct {
	b strings.Builder
}

func newTwiML() *twimlBuilder {
	t := &twimlBuilder{}
	t.b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<Response>")
	return t
}

func (t *twimlBuilder) String() string {
	return t.b.String() + "</Response>"
}

func (t *twimlBuilder) say(text string) *twimlBuilder {
	fmt.Fprintf(&t.b, `<Say voice=%q language=%q>%s</Say>`, sayVoice, sayLanguage, xmlEscape(text))
	return t
}

func (t *twimlBuilder) pause(seconds int) *twimlBuilder {
	fmt.Fprintf(&t.b, `<Pause length="%d"/>`, seconds)
	return t
}

func (t *twimlBuilder) hangup() *twimlBuilder {
	t.b.WriteString("<Hangup/>")
	return t
}

func (t *twimlBuilder) redirect(url string) *twimlBuilder {
	fmt.Fprintf(&t.b, `<Redirect>%s</Redirect>`, xmlEscape(url))
	return t
}

func (t *twimlBuilder) dial(callerID, number string, timeoutSec int) *twimlBuilder {
	fmt.Fprintf(&t.b, `<Dial callerId=%q timeout="%d">%s</Dial>`, xmlEscape(callerID), timeoutSec, xmlEscape(number))
	return t
}

// startStream opens the bidirectional media stream with the recognized
// per-call options as stream parameters. Parameters are emitted in sorted
// key order so the documents are stable.
func (t *twimlBuilder) startStream(wsURL string, params map[string]string) *twimlBuilder {
	fmt.Fprintf(&t.b, `<Start><Stream url=%q track="both_tracks">`, xmlEscape(wsURL))
	t.writeParameters(params)
	t.b.WriteString(`</Stream></Start>`)
	return t
}

// connectStream hands the whole call over to the media stream (agent mode).
func (t *twimlBuilder) connectStream(wsURL string, params map[string]string) *twimlBuilder {
	fmt.Fprintf(&t.b, `<Connect><Stream url=%q>`, xmlEscape(wsURL))
	t.writeParameters(params)
	t.b.WriteString(`</Stream></Connect>`)
	return t
}

func (t *twimlBuilder) writeParameters(params map[string]string) {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&t.b, `<Parameter name=%q value=%q/>`, xmlEscape(k), xmlEscape(params[k]))
	}
}

func (t *twimlBuilder) gatherSpeech(actionURL, prompt string) *twimlBuilder {
	fmt.Fprintf(&t.b,
		`<Gather input="speech" timeout="3" speechTimeout="2" language=%q action=%q method="POST">`,
		sayLanguage, xmlEscape(actionURL))
	t.say(prompt)
	t.b.WriteString("</Gather>")
	return t
}
