package recordings

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/prepcoach/recordings/internal/models"
	"github.com/prepcoach/recordings/pkg/database"
)

// testDatabaseEnv points at a disposable Postgres; these tests are skipped without it.
const testDatabaseEnv = "RECORDINGS_TEST_DATABASE_URL"

func newPostgresRepository(t *testing.T, c models.Collection) (*pgxpool.Pool, *Repository) {
	t.Helper()
	dsn := os.Getenv(testDatabaseEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, dsn, database.PoolOptions{}, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo, err := NewRepository(pool, c)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	return pool, repo
}

// insertRow creates a metadata row with NULL status, as the upload flow does.
func insertRow(t *testing.T, pool *pgxpool.Pool, c models.Collection) string {
	t.Helper()
	id := "rec_" + uuid.NewString()
	ctx := context.Background()
	if _, err := pool.Exec(ctx, `INSERT INTO `+c.Table()+` (id) VALUES ($1)`, id); err != nil {
		t.Fatalf("insert row: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM `+c.Table()+` WHERE id = $1`, id)
	})
	return id
}

func TestPostgresReadyGuard(t *testing.T) {
	pool, repo := newPostgresRepository(t, models.CollectionMockInterviewMessage)
	ctx := context.Background()
	id := insertRow(t, pool, models.CollectionMockInterviewMessage)

	// NULL status passes the guard.
	if applied, err := repo.MarkPreparing(ctx, id, "ast_1"); err != nil || !applied {
		t.Fatalf("preparing on uploading row: applied=%v err=%v", applied, err)
	}
	row, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	assertState(t, row, "ast_1", nil, models.AssetStatusPreparing)

	pb := "pb_1"
	if applied, err := repo.MarkReady(ctx, id, "ast_1", &pb); err != nil || !applied {
		t.Fatalf("ready: applied=%v err=%v", applied, err)
	}
	if applied, err := repo.MarkPreparing(ctx, id, "ast_1"); err != nil || applied {
		t.Fatalf("preparing on ready row: applied=%v err=%v", applied, err)
	}
	row, err = repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	assertState(t, row, "ast_1", &pb, models.AssetStatusReady)

	if applied, err := repo.MarkPreparing(ctx, "missing_"+id, "ast_1"); err != nil || applied {
		t.Fatalf("preparing on missing row: applied=%v err=%v", applied, err)
	}
}

func TestPostgresEmptyAssetIDKeepsStoredValue(t *testing.T) {
	pool, repo := newPostgresRepository(t, models.CollectionQuestionSubmission)
	ctx := context.Background()
	id := insertRow(t, pool, models.CollectionQuestionSubmission)

	if _, err := repo.MarkPreparing(ctx, id, "ast_1"); err != nil {
		t.Fatalf("preparing: %v", err)
	}
	if applied, err := repo.MarkErrored(ctx, id, ""); err != nil || !applied {
		t.Fatalf("errored: applied=%v err=%v", applied, err)
	}
	row, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	assertState(t, row, "ast_1", nil, models.AssetStatusErrored)
}

func TestPostgresConcurrentCreatedAndReadyEndReady(t *testing.T) {
	pool, repo := newPostgresRepository(t, models.CollectionMockInterviewMessage)
	ctx := context.Background()
	id := insertRow(t, pool, models.CollectionMockInterviewMessage)
	pb := "pb_1"

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := repo.MarkPreparing(ctx, id, "ast_1")
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := repo.MarkReady(ctx, id, "ast_1", &pb)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	row, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	assertState(t, row, "ast_1", &pb, models.AssetStatusReady)
}
