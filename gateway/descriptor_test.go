package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDescriptor_Artifact(t *testing.T) {
	parsed, err := LoadDescriptor("../config/WavePortal.json")
	require.NoError(t, err)

	wave := parsed.Methods[MethodWave]
	require.Len(t, wave.Inputs, 1)
	assert.Equal(t, "string", wave.Inputs[0].Type.String())

	ev := parsed.Events[EventNewWave]
	require.Len(t, ev.Inputs, 3)
	assert.True(t, ev.Inputs[0].Indexed)
	assert.Equal(t, "from", ev.Inputs[0].Name)
}

func TestParseDescriptor_BareArray(t *testing.T) {
	raw := []byte(`[
		{"type":"function","name":"getTotalWaves","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
		{"type":"function","name":"getAllWaves","inputs":[],"outputs":[{"name":"","type":"tuple[]","components":[
			{"name":"waver","type":"address"},{"name":"message","type":"string"},{"name":"timestamp","type":"uint256"}]}],"stateMutability":"view"},
		{"type":"function","name":"wave","inputs":[{"name":"_message","type":"string"}],"outputs":[],"stateMutability":"nonpayable"},
		{"type":"event","name":"NewWave","anonymous":false,"inputs":[
			{"name":"from","type":"address","indexed":true},{"name":"timestamp","type":"uint256","indexed":false},{"name":"message","type":"string","indexed":false}]}
	]`)

	parsed, err := ParseDescriptor(raw)
	require.NoError(t, err)
	assert.Contains(t, parsed.Methods, MethodAllWaves)
}

func TestParseDescriptor_Rejects(t *testing.T) {
	tests := map[string]string{
		"not json":       `{"abi": [`,
		"no abi member":  `{"contractName": "WavePortal"}`,
		"missing method": `{"abi": [{"type":"function","name":"wave","inputs":[{"name":"m","type":"string"}],"outputs":[]}]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDescriptor([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestGatewayAvailable(t *testing.T) {
	assert.False(t, Gateway{}.Available())
	assert.False(t, Gateway{Wallet: &KeystoreWallet{}}.Available())
}

func TestNewKeystoreWallet_MissingDir(t *testing.T) {
	_, err := NewKeystoreWallet("", nil, nil)
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = NewKeystoreWallet(t.TempDir()+"/nope", nil, nil)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}
