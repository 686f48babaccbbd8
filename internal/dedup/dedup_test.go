package dedup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/secmon/internal/models"
)

func testAlert(title string) *models.SecurityAlert {
	return &models.SecurityAlert{
		ID:        "a-" + title,
		Title:     title,
		EventType: models.EventLoginFailed,
		Severity:  models.SeverityHigh,
	}
}

func TestMemory_AdmitsThenSuppresses(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewMemory(5*time.Minute, 0, func() time.Time { return now })
	defer d.Close()
	ctx := context.Background()

	alert := testAlert("Brute force attack detected")

	ok, err := d.Admit(ctx, alert)
	require.NoError(t, err)
	assert.True(t, ok)

	// Same fingerprint inside the window: suppressed every time.
	for i := 0; i < 3; i++ {
		ok, err = d.Admit(ctx, alert)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestMemory_DifferentFingerprintsAdmitted(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewMemory(5*time.Minute, 0, func() time.Time { return now })
	defer d.Close()
	ctx := context.Background()

	ok, err := d.Admit(ctx, testAlert("Brute force attack detected"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Admit(ctx, testAlert("Injection attempt detected"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_WindowExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewMemory(5*time.Minute, 0, func() time.Time { return now })
	defer d.Close()
	ctx := context.Background()

	alert := testAlert("Brute force attack detected")

	ok, _ := d.Admit(ctx, alert)
	assert.True(t, ok)

	now = now.Add(4 * time.Minute)
	ok, _ = d.Admit(ctx, alert)
	assert.False(t, ok)

	// Past the suppression window the fingerprint is novel again.
	now = now.Add(2 * time.Minute)
	ok, _ = d.Admit(ctx, alert)
	assert.True(t, ok)
}

func TestMemory_SweepBoundsMemory(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewMemory(5*time.Minute, 0, func() time.Time { return now })
	defer d.Close()
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		_, err := d.Admit(ctx, testAlert(title))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, d.size())

	now = now.Add(10 * time.Minute)
	d.sweep()
	assert.Equal(t, 0, d.size())
}

func TestMemory_ConcurrentAdmitExactlyOne(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewMemory(5*time.Minute, 0, func() time.Time { return now })
	defer d.Close()

	alert := testAlert("Brute force attack detected")

	var wg sync.WaitGroup
	admitted := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := d.Admit(context.Background(), alert)
			require.NoError(t, err)
			admitted <- ok
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one concurrent duplicate must be admitted")
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestRedis_AdmitsThenSuppresses(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	d := NewRedisWithClient(client, 5*time.Minute, nil)
	ctx := context.Background()

	alert := testAlert("Brute force attack detected")

	ok, err := d.Admit(ctx, alert)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Admit(ctx, alert)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_SuppressionExpires(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	d := NewRedisWithClient(client, time.Minute, nil)
	ctx := context.Background()

	alert := testAlert("Injection attempt detected")

	ok, err := d.Admit(ctx, alert)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = d.Admit(ctx, alert)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedis_FailsOpenOnBackendError(t *testing.T) {
	mr, client := setupTestRedis(t)
	d := NewRedisWithClient(client, time.Minute, nil)

	// Backend gone: the alert is still admitted.
	mr.Close()
	client.Close()

	ok, err := d.Admit(context.Background(), testAlert("x"))
	require.NoError(t, err)
	assert.True(t, ok)
}
