package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventString(t *testing.T) {
	e := Event{
		Pipeline: "grace",
		Type:     EventPublish,
		Metadata: &PublishEventMetadata{
			Revision: "0123456789abcdef",
			Outputs:  []string{"GRACE-Months.html"},
		},
	}
	assert.Equal(t, "Published GRACE-Months.html (0123456)", e.String())

	e.Metadata.(*PublishEventMetadata).PullRequestURL = "https://github.com/example/site/pull/42"
	assert.Equal(t,
		"Published GRACE-Months.html (0123456) for review: https://github.com/example/site/pull/42",
		e.String())

	skip := Event{Pipeline: "grace", Type: EventSkip}
	assert.Equal(t, "No changes to publish for grace", skip.String())
}

func TestEventStringWithoutMetadata(t *testing.T) {
	// Deserialized events may carry no metadata at all; String must
	// still describe them.
	for _, in := range []string{
		`{"pipeline":"grace","type":"sync"}`,
		`{"pipeline":"grace","type":"regenerate"}`,
		`{"pipeline":"grace","type":"publish"}`,
	} {
		e, err := UnmarshalEvent([]byte(in))
		assert.NoError(t, err)
		assert.NotPanics(t, func() { _ = e.String() })
		assert.Contains(t, e.String(), "grace")
	}
}

func TestUnmarshalEvent(t *testing.T) {
	in := Event{
		ID:       7,
		Pipeline: "grace",
		Type:     EventSync,
		Metadata: &SyncEventMetadata{Archive: "podaac", Downloaded: 3, UpToDate: 200},
	}
	b, err := json.Marshal(in)
	assert.NoError(t, err)

	out, err := UnmarshalEvent(b)
	assert.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.Metadata, out.Metadata)
}

func TestUnmarshalEventUnknownType(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{"type":"mystery","metadata":{}}`))
	assert.Error(t, err)
}
