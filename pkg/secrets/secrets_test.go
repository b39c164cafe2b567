package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── cache ───

func TestCache_PutGet(t *testing.T) {
	c := NewCache[string](time.Minute)
	c.Put("a", "1")

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache[int](time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Put("k", 7)

	now = now.Add(2 * time.Minute)
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Empty(t, c.data)
}

// ─── aws provider ───

type fakeSecretsManager struct {
	value *string
	err   error
	asked string
}

func (f *fakeSecretsManager) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.asked = aws.ToString(in.SecretId)
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func TestAWSProvider_GetSecret(t *testing.T) {
	sm := &fakeSecretsManager{value: aws.String(`{"username":"admin","password":"pw"}`)}
	p := &AWSProvider{client: sm}

	got, err := p.GetSecret(context.Background(), "dev/apitest/smarti")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"username": "admin", "password": "pw"}, got)
	assert.Equal(t, "dev/apitest/smarti", sm.asked)
}

func TestAWSProvider_Errors(t *testing.T) {
	_, err := (&AWSProvider{client: &fakeSecretsManager{err: errors.New("denied")}}).GetSecret(context.Background(), "x")
	assert.ErrorContains(t, err, "failed to fetch secret [x]")

	_, err = (&AWSProvider{client: &fakeSecretsManager{}}).GetSecret(context.Background(), "x")
	assert.ErrorContains(t, err, "no string value")

	_, err = (&AWSProvider{client: &fakeSecretsManager{value: aws.String("not json")}}).GetSecret(context.Background(), "x")
	assert.ErrorContains(t, err, "invalid secret format")
}
