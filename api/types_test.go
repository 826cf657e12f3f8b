package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponse_Message(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string detail", `{"detail":"Vidéo non trouvée"}`, "Vidéo non trouvée"},
		{"validation list", `{"detail":[{"loc":["body","prompt"],"msg":"field required","type":"value_error.missing"},{"loc":["body"],"msg":"bad"}]}`, "field required; bad"},
		{"missing detail", `{}`, ""},
		{"unexpected shape", `{"detail":{"x":1}}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(tt.body), &resp))
			assert.Equal(t, tt.want, resp.Message())
		})
	}
}

func TestGenerationStatus_NullProgress(t *testing.T) {
	var st GenerationStatus
	require.NoError(t, json.Unmarshal([]byte(`{"task_id":"t1","status":"failed","progress":null,"error":"boom"}`), &st))

	assert.Equal(t, TaskFailed, st.Status)
	assert.Nil(t, st.Progress)
	assert.Equal(t, 0.0, st.ProgressValue())
	assert.True(t, st.Status.IsTerminal())
	assert.False(t, TaskRunning.IsTerminal())
}

func TestVideoInfo_Ref(t *testing.T) {
	info := VideoInfo{FileID: "abc", Filename: "clip.mp4", SizeBytes: 10, ContentType: "video/mp4"}
	assert.Equal(t, VideoRef{FileID: "abc", Filename: "clip.mp4"}, info.Ref())
}
