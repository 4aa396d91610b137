package broadcast

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pishield/pishield/pkg/models"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    MessageType
		token   string
		wantErr bool
	}{
		{"auth", `{"type":"AUTH","token":"abc"}`, TypeAuth, "abc", false},
		{"auth without token", `{"type":"AUTH"}`, TypeAuth, "", false},
		{"unknown type passes through", `{"type":"PING","data":{"x":1}}`, MessageType("PING"), "", false},
		{"missing type", `{"token":"abc"}`, "", "", true},
		{"not json", `hello`, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Type)
			assert.Equal(t, tt.token, msg.Token)
		})
	}
}

func TestEncode_OmitsEmptyFields(t *testing.T) {
	data, err := Encode(Message{Type: TypeAuthSuccess, Message: "Authentication successful"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"AUTH_SUCCESS","message":"Authentication successful"}`, string(data))

	data, err = Encode(Message{Type: TypeAlertUpdate, Data: models.AlertStatusChange{ID: "a1", Status: models.StatusResolved}})
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "ALERT_UPDATE", decoded["type"])
	assert.Equal(t, map[string]interface{}{"id": "a1", "status": "resolved"}, decoded["data"])
	assert.NotContains(t, decoded, "token")
}
