package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"strings"
)

// SeedFromName は名前から決定論的なシード値を生成します。
// 大文字小文字と前後の空白は区別しません。
func SeedFromName(name string) int64 {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(name))))
	seed := int32(binary.BigEndian.Uint32(hash[:4]))
	// Gemini のシード値は正の数が望ましいため、最上位ビットを落とす
	return int64(seed & 0x7FFFFFFF)
}

// PanelSeed はパネルの主要キャラクターからシード値を決めます。
// キャラクターがいない場合は nil を返し、生成側の既定に任せます。
func PanelSeed(p Panel) *int64 {
	for _, name := range p.Characters {
		if strings.TrimSpace(name) == "" {
			continue
		}
		s := SeedFromName(name)
		return &s
	}
	return nil
}
