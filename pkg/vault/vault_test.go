package vault

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custody-wallet/pkg/bip39"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func newTestVault(t *testing.T) (*Vault, string) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	return New(store, WithScryptN(LightScryptN)), dir
}

func TestCreateAndUnlock(t *testing.T) {
	ctx := context.Background()
	v, dir := newTestVault(t)

	id, mnemonic, err := v.Create(ctx, "correct horse battery", 128)
	require.NoError(t, err)
	assert.Len(t, bip39.Words(mnemonic), 12)
	assert.Len(t, id, 64)

	// 文件里不能有明文
	raw, err := os.ReadFile(filepath.Join(dir, id+".json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), bip39.Words(mnemonic)[0]+" ")

	info, err := os.Stat(filepath.Join(dir, id+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	seed, err := v.Unlock(ctx, id, "correct horse battery")
	require.NoError(t, err)
	expected := bip39.NewMnemonicService().MnemonicToSeed(mnemonic, "")
	assert.Equal(t, expected, seed.Bytes())

	seed.Wipe()
	assert.Nil(t, seed.Bytes())
}

func TestUnlockWrongPassword(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	id, err := v.Import(ctx, testMnemonic, "password-1")
	require.NoError(t, err)

	_, err = v.Unlock(ctx, id, "password-2")
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = v.Unlock(ctx, "unknown", "password-1")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestImportIsStableAndNotOverwritten(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t)

	id1, err := v.Import(ctx, testMnemonic, "password-1")
	require.NoError(t, err)

	seed := bip39.NewMnemonicService().MnemonicToSeed(testMnemonic, "")
	fp, err := Fingerprint(seed)
	require.NoError(t, err)
	assert.Equal(t, fp, id1)

	// 同一种子再次导入不会覆盖已有密文
	_, err = v.Import(ctx, strings.ToUpper(testMnemonic), "password-2")
	assert.ErrorIs(t, err, ErrBlobExists)

	_, err = v.Import(ctx, testMnemonic+" abandon", "password-1")
	assert.Error(t, err)

	_, err = v.Import(ctx, testMnemonic, "short")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestUnlockRejectsTamperedEnvelope(t *testing.T) {
	ctx := context.Background()
	v, dir := newTestVault(t)

	id, err := v.Import(ctx, testMnemonic, "password-1")
	require.NoError(t, err)

	// 把密文换到另一个 id 下，附加数据不匹配必须解不开
	raw, err := os.ReadFile(filepath.Join(dir, id+".json"))
	require.NoError(t, err)
	env, err := unmarshalEnvelope(raw)
	require.NoError(t, err)
	env.MasterKeyID = strings.Repeat("0", 64)
	forged, err := env.marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, env.MasterKeyID+".json"), forged, 0600))

	_, err = v.Unlock(ctx, env.MasterKeyID, "password-1")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

type preconditionErr struct{}

func (preconditionErr) Error() string     { return "precondition failed" }
func (preconditionErr) ErrorCode() string { return "PreconditionFailed" }

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	if _, ok := f.objects[key]; ok && aws.ToString(in.IfNoneMatch) == "*" {
		return nil, preconditionErr{}
	}
	data, _ := io.ReadAll(in.Body)
	f.objects[key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}
	store := &S3Store{client: fake, bucket: "vault-bucket", prefix: "vault/"}
	v := New(store, WithScryptN(LightScryptN))

	id, err := v.Import(ctx, testMnemonic, "password-1")
	require.NoError(t, err)
	assert.Contains(t, fake.objects, "vault-bucket/vault/"+id+".json")

	seed, err := v.Unlock(ctx, id, "password-1")
	require.NoError(t, err)
	defer seed.Wipe()
	assert.Len(t, seed.Bytes(), 64)

	_, err = v.Import(ctx, testMnemonic, "password-1")
	assert.ErrorIs(t, err, ErrBlobExists)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestOpenStore(t *testing.T) {
	_, err := OpenStore(context.Background(), "s3", "", S3Config{})
	assert.Error(t, err)

	store, err := OpenStore(context.Background(), "file", t.TempDir(), S3Config{})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
}
