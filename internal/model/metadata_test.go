package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestMergeMetadata(t *testing.T) {
	testCases := []struct {
		name     string
		base     map[string]interface{}
		patch    map[string]interface{}
		expected map[string]interface{}
	}{
		{
			name:     "nil base",
			base:     nil,
			patch:    map[string]interface{}{"a": 1},
			expected: map[string]interface{}{"a": 1},
		},
		{
			name:     "keeps unrelated keys",
			base:     map[string]interface{}{"cron": map[string]interface{}{"status": "PENDING"}},
			patch:    map[string]interface{}{"webhook": map[string]interface{}{"status": "RECEIVED"}},
			expected: map[string]interface{}{"cron": map[string]interface{}{"status": "PENDING"}, "webhook": map[string]interface{}{"status": "RECEIVED"}},
		},
		{
			name:     "merges nested maps",
			base:     map[string]interface{}{"webhook": map[string]interface{}{"status": "PENDING", "event": "payment.created"}},
			patch:    map[string]interface{}{"webhook": map[string]interface{}{"status": "RECEIVED"}},
			expected: map[string]interface{}{"webhook": map[string]interface{}{"status": "RECEIVED", "event": "payment.created"}},
		},
		{
			name:     "merges datatypes map from the database",
			base:     map[string]interface{}{"webhook": datatypes.JSONMap{"event": "payment.created"}},
			patch:    map[string]interface{}{"webhook": map[string]interface{}{"status": "RECEIVED"}},
			expected: map[string]interface{}{"webhook": map[string]interface{}{"status": "RECEIVED", "event": "payment.created"}},
		},
		{
			name:     "scalar replaces map",
			base:     map[string]interface{}{"note": map[string]interface{}{"x": 1}},
			patch:    map[string]interface{}{"note": "plain"},
			expected: map[string]interface{}{"note": "plain"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, MergeMetadata(tc.base, tc.patch))
		})
	}
}

func TestMergeMetadataDoesNotMutateInputs(t *testing.T) {
	base := map[string]interface{}{"webhook": map[string]interface{}{"status": "PENDING"}}
	patch := map[string]interface{}{"webhook": map[string]interface{}{"status": "RECEIVED"}}

	_ = MergeMetadata(base, patch)

	assert.Equal(t, "PENDING", base["webhook"].(map[string]interface{})["status"])
	assert.Len(t, patch, 1)
}
