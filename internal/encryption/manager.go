package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"go.uber.org/zap"

	"github.com/Kaushals112/shadow-aiims-defender/internal/config"
	"github.com/Kaushals112/shadow-aiims-defender/internal/util"
)

// Manager encrypts captured attack payloads before they leave the process
// for the long-term archive. Payloads are attacker-controlled bytes; the
// archive treats them as sensitive evidence.
//
// Without KMS it uses a process-local random data key (payloads are then
// only readable for the life of the process, acceptable in development).
// With KMS enabled, the data key is generated under the configured CMK and
// kept in memory alongside its encrypted blob.
type Manager struct {
	mu        sync.RWMutex
	aead      cipher.AEAD
	keyBlob   []byte
	kmsKeyID  string
	kmsClient *kms.Client
	logger    *zap.Logger
}

// NewManager creates the payload encryption manager. KMS setup errors fall
// back to a local key with a warning; archived evidence is better encrypted
// locally than not archived at all.
func NewManager(cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = util.Get()
	}
	m := &Manager{kmsKeyID: cfg.KMS.KeyID, logger: logger}

	var key []byte
	if cfg.KMS.Enabled && cfg.KMS.KeyID != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.KMS.Region))
		if err != nil {
			logger.Warn("failed to load AWS config, using local data key", zap.Error(err))
		} else {
			m.kmsClient = kms.NewFromConfig(awsCfg)
			out, err := m.kmsClient.GenerateDataKey(context.Background(), &kms.GenerateDataKeyInput{
				KeyId:   &m.kmsKeyID,
				KeySpec: types.DataKeySpecAes256,
			})
			if err != nil {
				logger.Warn("KMS data key generation failed, using local data key", zap.Error(err))
			} else {
				key = out.Plaintext
				m.keyBlob = out.CiphertextBlob
				logger.Info("payload encryption using KMS data key",
					zap.String("key_id", cfg.KMS.KeyID))
			}
		}
	}

	if key == nil {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate local data key: %w", err)
		}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init payload cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init payload AEAD: %w", err)
	}
	m.aead = aead
	return m, nil
}

// EncryptPayload seals a payload for the archive, returning base64 of
// nonce||ciphertext. Empty payloads pass through empty.
func (m *Manager) EncryptPayload(payload string) (string, error) {
	if payload == "" {
		return "", nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	nonce := make([]byte, m.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := m.aead.Seal(nonce, nonce, []byte(payload), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptPayload reverses EncryptPayload.
func (m *Manager) DecryptPayload(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode payload: %w", err)
	}
	if len(raw) < m.aead.NonceSize() {
		return "", fmt.Errorf("payload ciphertext too short")
	}
	nonce, ciphertext := raw[:m.aead.NonceSize()], raw[m.aead.NonceSize():]
	plain, err := m.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt payload: %w", err)
	}
	return string(plain), nil
}

// KeyBlob exposes the KMS-encrypted data key for archival next to the
// events, so evidence stays decryptable after a restart. Nil for local keys.
func (m *Manager) KeyBlob() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.keyBlob
}
