package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWhatlangDetector(t *testing.T) {
	d := WhatlangDetector{}
	require.True(t, d.IsEnglish("Reliance Industries reported a sharp rise in quarterly profit on Thursday"))
	require.False(t, d.IsEnglish("रिलायंस इंडस्ट्रीज ने गुरुवार को तिमाही मुनाफे में तेज वृद्धि दर्ज की"))
	require.False(t, d.IsEnglish("   "))
}

func TestHTTPTranslator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/translate", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req translateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "auto", req.Source)
		require.Equal(t, "en", req.Target)
		require.Equal(t, "secret", req.APIKey)

		if strings.Contains(req.Q, "fail") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unsupported"}`))
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(translateResponse{TranslatedText: "EN:" + req.Q}))
	}))
	defer server.Close()

	tr := NewHTTPTranslator(TranslateConfig{Endpoint: server.URL + "/", APIKey: "secret"},
		WithHTTPClient(server.Client()))
	ctx := context.Background()

	require.Equal(t, "EN:रिलायंस", tr.Translate(ctx, "रिलायंस"))
	require.Equal(t, "please fail", tr.Translate(ctx, "please fail"), "failures keep the original")
	require.Equal(t, "", tr.Translate(ctx, ""))

	dead := NewHTTPTranslator(TranslateConfig{Endpoint: "http://127.0.0.1:1"})
	require.Equal(t, "रिलायंस", dead.Translate(ctx, "रिलायंस"))
}

type stubDetector map[string]bool

func (d stubDetector) IsEnglish(text string) bool { return d[text] }

type prefixTranslator struct{ calls []string }

func (p *prefixTranslator) Translate(_ context.Context, text string) string {
	p.calls = append(p.calls, text)
	return "EN:" + text
}

func TestLocalizer(t *testing.T) {
	tr := &prefixTranslator{}
	l := NewLocalizer(stubDetector{"Reliance profit up": true}, tr)
	ctx := context.Background()

	c := l.Localize(ctx, Candidate{Title: "Reliance profit up", Snippet: "मुनाफा बढ़ा"})
	require.Equal(t, "Reliance profit up", c.Title)
	require.Equal(t, "EN:मुनाफा बढ़ा", c.Snippet)

	c = l.Localize(ctx, Candidate{Title: "रिलायंस", Snippet: NoSummary})
	require.Equal(t, "EN:रिलायंस", c.Title)
	require.Equal(t, NoSummary, c.Snippet)
	require.Equal(t, []string{"मुनाफा बढ़ा", "रिलायंस"}, tr.calls)

	var nilLocalizer *Localizer
	orig := Candidate{Title: "रिलायंस"}
	require.Equal(t, orig, nilLocalizer.Localize(ctx, orig))
	require.Equal(t, "x", NoopTranslator{}.Translate(ctx, "x"))
}
