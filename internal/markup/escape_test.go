package markup

import (
	"bytes"
	"encoding/xml"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a & b", "a &amp; b"},
		{"<script>", "&lt;script&gt;"},
		{`"quoted"`, "&#34;quoted&#34;"},
		{"it's", "it&#39;s"},
		{"Très élevé", "Très élevé"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Escape(tt.in))
		})
	}
}

func TestEscape_SurvivesXMLRoundTrip(t *testing.T) {
	label := `<b>"High" & 'rising'</b>`
	tmpl := template.Must(template.New("x").Funcs(Funcs()).Parse(`<doc attr="{{esc .}}">{{esc .}}</doc>`))

	var buf bytes.Buffer
	require.NoError(t, tmpl.Execute(&buf, label))

	var doc struct {
		Attr string `xml:"attr,attr"`
		Text string `xml:",chardata"`
	}
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, label, doc.Attr)
	assert.Equal(t, label, doc.Text)
}
