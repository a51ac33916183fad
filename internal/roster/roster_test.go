package roster

import (
	"os"
	"path/filepath"
	"testing"

	"emergency-dispatch-be/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
responders:
  - id: AMB-1
    name: Ambulance One
    role: medical
    unit: North
    lat: 28.6139
    lng: 77.2090
  - id: POL-7
    name: Patrol Seven
    role: police
    status: offline
`

func TestParse(t *testing.T) {
	responders, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, responders, 2)

	amb := responders[0]
	assert.Equal(t, "AMB-1", amb.Id)
	assert.Equal(t, entity.ResponderMedical, amb.Role)
	assert.Equal(t, entity.ResponderAvailable, amb.Status)
	assert.Equal(t, "North", amb.UnitId)
	require.NotNil(t, amb.Location)
	assert.InDelta(t, 77.2090, amb.Location.Lng, 1e-9)

	pol := responders[1]
	assert.Equal(t, entity.ResponderOffline, pol.Status)
	assert.Nil(t, pol.Location)
}

func TestParseRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"unknown role":  "responders:\n  - id: X\n    role: pilot\n",
		"missing id":    "responders:\n  - role: fire\n",
		"busy status":   "responders:\n  - id: X\n    role: fire\n    status: busy\n",
		"half location": "responders:\n  - id: X\n    role: fire\n    lat: 1.5\n",
		"duplicate id":  "responders:\n  - id: X\n    role: fire\n  - id: X\n    role: police\n",
		"not yaml":      "responders: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "responders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	responders, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, responders, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
