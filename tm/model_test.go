package tm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mappa/errors"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		in      string
		want    Ref
		wantErr bool
	}{
		{in: "si:http://psi.example.org/pikachu", want: SI("http://psi.example.org/pikachu")},
		{in: "sl:http://example.org/doc.pdf", want: SL("http://example.org/doc.pdf")},
		{in: "ii:#t1", want: II("#t1")},
		{in: "ii:", want: II("")},
		{in: "xx:http://example.org", wantErr: true},
		{in: "http//example.org", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRef(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidRef))
				assert.True(t, errors.Is(err, errors.ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestRef_JSON(t *testing.T) {
	typ := SI("http://psi.example.org/nickname")
	topic := Topic{
		ID:                 "t1",
		SubjectIdentifiers: []string{"http://psi.example.org/pikachu"},
		Types:              []Ref{SI("http://psi.example.org/pokemon")},
		Names:              []Name{{Type: &typ, Value: "Pika", Scope: []Ref{II("#en")}}},
	}

	data, err := json.Marshal(topic)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"types":["si:http://psi.example.org/pokemon"]`)
	assert.Contains(t, string(data), `"scope":["ii:#en"]`)

	var decoded Topic
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, topic, decoded)
}

func TestMatchingRefs(t *testing.T) {
	assert.ElementsMatch(t, []Ref{SI("x"), II("x")}, MatchingRefs(SI("x")))
	assert.ElementsMatch(t, []Ref{II("x"), SI("x")}, MatchingRefs(II("x")))
	assert.Equal(t, []Ref{SL("x")}, MatchingRefs(SL("x")))
}

func TestName_TypeRef(t *testing.T) {
	assert.Equal(t, SI(DefaultNameType), Name{Value: "a"}.TypeRef())
	typ := II("#alias")
	assert.Equal(t, typ, Name{Type: &typ, Value: "a"}.TypeRef())
	// nil type and explicit default type are the same name
	def := SI(DefaultNameType)
	assert.True(t, Name{Value: "a"}.equal(Name{Type: &def, Value: "a"}))
}

func TestTopic_Clone(t *testing.T) {
	typ := II("#nick")
	orig := Topic{
		ID:              "t1",
		ItemIdentifiers: []string{"#a"},
		Names:           []Name{{Type: &typ, Value: "a"}},
		Occurrences:     []Occurrence{{Type: II("#w"), Value: "1", Datatype: XSDString}},
	}
	c := orig.Clone()
	c.ItemIdentifiers[0] = "#changed"
	c.Names[0].Type.IRI = "#changed"
	c.Occurrences[0].Value = "2"

	assert.Equal(t, "#a", orig.ItemIdentifiers[0])
	assert.Equal(t, "#nick", orig.Names[0].Type.IRI)
	assert.Equal(t, "1", orig.Occurrences[0].Value)
	assert.Nil(t, Topic{ID: "bare"}.Clone().Names)
}
