package gateway

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/tidwall/gjson"
)

// Contract method and event names.
const (
	MethodTotalWaves = "getTotalWaves"
	MethodAllWaves   = "getAllWaves"
	MethodWave       = "wave"
	EventNewWave     = "NewWave"
)

// LoadDescriptor reads a compiled contract artifact and parses its "abi" member.
// A bare ABI array is accepted as well.
func LoadDescriptor(path string) (abi.ABI, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read descriptor: %w", err)
	}
	return ParseDescriptor(raw)
}

// ParseDescriptor parses artifact bytes as LoadDescriptor does.
func ParseDescriptor(raw []byte) (abi.ABI, error) {
	if !gjson.ValidBytes(raw) {
		return abi.ABI{}, fmt.Errorf("descriptor is not valid JSON")
	}

	abiJSON := string(raw)
	if res := gjson.ParseBytes(raw); res.IsObject() {
		member := res.Get("abi")
		if !member.IsArray() {
			return abi.ABI{}, fmt.Errorf("descriptor has no abi array")
		}
		abiJSON = member.Raw
	}

	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}

	for _, name := range []string{MethodTotalWaves, MethodAllWaves, MethodWave} {
		if _, ok := parsed.Methods[name]; !ok {
			return abi.ABI{}, fmt.Errorf("abi is missing method %q", name)
		}
	}
	if _, ok := parsed.Events[EventNewWave]; !ok {
		return abi.ABI{}, fmt.Errorf("abi is missing event %q", EventNewWave)
	}
	return parsed, nil
}
