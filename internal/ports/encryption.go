package ports

// EncryptionService defines the interface for at-rest token encryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
