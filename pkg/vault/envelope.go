package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"

	"custody-wallet/pkg/safe_random"
)

// Envelope 加密后的主密钥，落盘 / 上传 S3 的格式
// 结构沿用 Keystore V3 的风格，加密内容是助记词 (而不是单个私钥)
type Envelope struct {
	Version     int        `json:"version"`
	MasterKeyID string     `json:"master_key_id"`
	Crypto      CryptoJSON `json:"crypto"`
}

type CryptoJSON struct {
	Cipher     string    `json:"cipher"`     // "aes-256-gcm"
	CipherText string    `json:"ciphertext"` // Hex
	Nonce      string    `json:"nonce"`      // Hex
	KDF        string    `json:"kdf"`        // "scrypt"
	KDFParams  KDFParams `json:"kdfparams"`
}

type KDFParams struct {
	DKLen int    `json:"dklen"`
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	Salt  string `json:"salt"` // Hex
}

const (
	envelopeVersion = 1
	cipherName      = "aes-256-gcm"
	kdfName         = "scrypt"

	// StandardScryptN 生产环境参数，单次解锁约 1s
	StandardScryptN = 1 << 18
	// LightScryptN 仅用于测试
	LightScryptN = 1 << 12

	scryptR     = 8
	scryptP     = 1
	scryptDKLen = 32
)

var ErrWrongPassword = errors.New("密码错误或数据已损坏")

// seal 用密码加密明文，masterKeyID 作为 GCM 附加数据绑定到密文上
func seal(plaintext []byte, password, masterKeyID string, scryptN int) (*Envelope, error) {
	// 1. 随机 Salt
	salt, err := safe_random.GenerateRandomBytes(32)
	if err != nil {
		return nil, err
	}

	// 2. Scrypt 派生 AES-256 密钥
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptDKLen)
	if err != nil {
		return nil, fmt.Errorf("派生密钥失败: %w", err)
	}
	defer wipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce, err := safe_random.GenerateRandomBytes(gcm.NonceSize())
	if err != nil {
		return nil, err
	}

	// 3. 加密
	ciphertext := gcm.Seal(nil, nonce, plaintext, []byte(masterKeyID))

	return &Envelope{
		Version:     envelopeVersion,
		MasterKeyID: masterKeyID,
		Crypto: CryptoJSON{
			Cipher:     cipherName,
			CipherText: hex.EncodeToString(ciphertext),
			Nonce:      hex.EncodeToString(nonce),
			KDF:        kdfName,
			KDFParams: KDFParams{
				DKLen: scryptDKLen,
				N:     scryptN,
				R:     scryptR,
				P:     scryptP,
				Salt:  hex.EncodeToString(salt),
			},
		},
	}, nil
}

// open 解密信封，返回的明文由调用方负责擦除
func (e *Envelope) open(password string) ([]byte, error) {
	if e.Crypto.Cipher != cipherName || e.Crypto.KDF != kdfName {
		return nil, fmt.Errorf("不支持的加密格式: %s/%s", e.Crypto.Cipher, e.Crypto.KDF)
	}

	salt, err := hex.DecodeString(e.Crypto.KDFParams.Salt)
	if err != nil {
		return nil, fmt.Errorf("invalid salt: %w", err)
	}
	nonce, err := hex.DecodeString(e.Crypto.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}
	ciphertext, err := hex.DecodeString(e.Crypto.CipherText)
	if err != nil {
		return nil, fmt.Errorf("invalid ciphertext: %w", err)
	}

	p := e.Crypto.KDFParams
	key, err := scrypt.Key([]byte(password), salt, p.N, p.R, p.P, p.DKLen)
	if err != nil {
		return nil, fmt.Errorf("派生密钥失败: %w", err)
	}
	defer wipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length %d", len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(e.MasterKeyID))
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

func (e *Envelope) marshal() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

func unmarshalEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("解析密钥文件失败: %w", err)
	}
	if e.Version != envelopeVersion {
		return nil, fmt.Errorf("不支持的密钥文件版本: %d", e.Version)
	}
	return &e, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
