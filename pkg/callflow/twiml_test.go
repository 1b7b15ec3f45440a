package callflow

import (
	"strings"
	"testing"
)

func TestTwiMLSayEscapes(t *testing.T) {
	doc := newTwiML().say(`Novo lead: "A & B" <Ltda>`).String()

	if !strings.Contains(doc, `voice="Polly.Camila-Neural"`) {
		t.Error("missing voice attribute")
	}
	if !strings.Contains(doc, `language="pt-BR"`) {
		t.Error("missing language attribute")
	}
	if !strings.Contains(doc, "&quot;A &amp; B&quot; &lt;Ltda&gt;") {
		t.Errorf("text not escaped: %s", doc)
	}
	if !strings.HasPrefix(doc, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Error("missing XML declaration")
	}
	if !strings.HasSuffix(doc, "</Response>") {
		t.Error("unterminated response")
	}
}

func TestTwiMLStartStream(t *testing.T) {
	doc := newTwiML().startStream("wss://example.com/media-stream", map[string]string{
		"mode":    "bridge",
		"call_id": "c1",
		"empty":   "",
	}).String()

	if !strings.Contains(doc, `<Start><Stream url="wss://example.com/media-stream" track="both_tracks">`) {
		t.Errorf("missing stream open: %s", doc)
	}
	if !strings.Contains(doc, `<Parameter name="call_id" value="c1"/>`) {
		t.Errorf("missing parameter: %s", doc)
	}
	if !strings.Contains(doc, `<Parameter name="mode" value="bridge"/>`) {
		t.Errorf("missing mode parameter: %s", doc)
	}
	if strings.Contains(doc, "empty") {
		t.Error("empty-valued parameters must be omitted")
	}
	// Sorted key order keeps documents deterministic.
	if strings.Index(doc, "call_id") > strings.Index(doc, "mode") {
		t.Error("parameters not in sorted order")
	}
}

func TestTwiMLGatherDialHangup(t *testing.T) {
	doc := newTwiML().
		gatherSpeech("/verify-sdr?a=1&b=2", "Diga algo para confirmar que você está na linha.").
		redirect("/verify-sdr?a=1&b=2").
		String()

	if !strings.Contains(doc, `<Gather input="speech" timeout="3" speechTimeout="2" language="pt-BR" action="/verify-sdr?a=1&amp;b=2" method="POST">`) {
		t.Errorf("gather malformed: %s", doc)
	}
	if !strings.Contains(doc, "<Redirect>/verify-sdr?a=1&amp;b=2</Redirect>") {
		t.Errorf("redirect malformed: %s", doc)
	}

	doc = newTwiML().dial("+5511999990000", "+5511888880000", 30).hangup().String()
	if !strings.Contains(doc, `<Dial callerId="+5511999990000" timeout="30">+5511888880000</Dial>`) {
		t.Errorf("dial malformed: %s", doc)
	}
	if !strings.Contains(doc, "<Hangup/>") {
		t.Errorf("hangup missing: %s", doc)
	}
}

func TestSanitizePhone(t *testing.T) {
	cases := map[string]string{
		"+55 (11) 99999-0000": "+5511999990000",
		"11 9 9999 0000":      "11999990000",
		"tel:+55x11":          "5511",
		"":                    "",
	}
	for in, want := range cases {
		if got := SanitizePhone(in); got != want {
			t.Errorf("SanitizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}
