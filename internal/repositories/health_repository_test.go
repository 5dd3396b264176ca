package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
)

func TestDependencyHealthRepositoryCollect(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.December, 14, 8, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "mysql", Check: func(context.Context) error { return nil }},
		{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	}, WithDependencyClock(func() time.Time { return now }))
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.HealthStatusDegraded, report.Status)
	assert.Equal(t, now, report.GeneratedAt)
	assert.Equal(t, domain.HealthStatusOK, report.Checks["mysql"].Status)
	assert.Equal(t, "connection refused", report.Checks["redis"].Error)
}

func TestDependencyHealthRepositoryTimeout(t *testing.T) {
	t.Parallel()

	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{
			Name:    "mysql",
			Timeout: 10 * time.Millisecond,
			Check: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
	})
	require.NoError(t, err)

	report, err := repo.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusError, report.Status)
	assert.Equal(t, "timeout", report.Checks["mysql"].Detail)
}

func TestNewDependencyHealthRepositoryValidates(t *testing.T) {
	t.Parallel()

	_, err := NewDependencyHealthRepository(nil)
	require.Error(t, err)

	_, err = NewDependencyHealthRepository([]DependencyCheck{{Name: "mysql"}})
	require.Error(t, err)
}
