package service

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/ScepterCode/class-admission-api/pkg/errors"
	"github.com/ScepterCode/class-admission-api/pkg/storage"
)

func newExportFixture(t *testing.T) (*ExportService, *memWaitlist) {
	svc, _, waitlist := newExportFixtureWithLedger(t)
	return svc, waitlist
}

func newExportFixtureWithLedger(t *testing.T) (*ExportService, *memLedger, *memWaitlist) {
	t.Helper()
	ledger := newMemLedger(openClass("c1", 2, 5))
	waitlist := newMemWaitlist()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewExportService(ledger, waitlist, files, signer, ExportConfig{APIPrefix: "/api/v1"}, nil, nil, nil)
	return svc, ledger, waitlist
}

func TestGenerateRosterCSV(t *testing.T) {
	svc, waitlist := newExportFixture(t)

	for _, id := range []string{"s1", "s2", "s3"} {
		_, err := waitlist.Insert(context.Background(), "c1", id, 0)
		require.NoError(t, err)
	}

	result, err := svc.GenerateRoster(context.Background(), "c1", RosterFormatCSV)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Contains(t, result.URL, "/api/v1/exports/")
	assert.True(t, result.ExpiresAt.After(time.Now()))

	file, err := svc.OpenDownload(result.Token)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "Position", records[0][0])
	assert.Equal(t, "s1", records[1][1])
	assert.Equal(t, "s3", records[3][1])
}

func TestGenerateRosterPDF(t *testing.T) {
	svc, waitlist := newExportFixture(t)

	_, err := waitlist.Insert(context.Background(), "c1", "s1", 0)
	require.NoError(t, err)

	result, err := svc.GenerateRoster(context.Background(), "c1", RosterFormatPDF)
	require.NoError(t, err)

	file, err := svc.OpenDownload(result.Token)
	require.NoError(t, err)
	defer file.Close()

	header := make([]byte, 5)
	_, err = io.ReadFull(file, header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(header))
}

func TestGenerateRosterUnknownClass(t *testing.T) {
	svc, _ := newExportFixture(t)

	_, err := svc.GenerateRoster(context.Background(), "missing", RosterFormatCSV)
	assert.True(t, appErrors.Is(err, appErrors.ErrClassNotFound))
}

func TestGenerateRosterLookupFailure(t *testing.T) {
	svc, ledger, _ := newExportFixtureWithLedger(t)

	// A store outage is not class absence; callers retry persistence
	// failures but treat a missing class as final.
	ledger.findErr = errors.New("connection reset")
	_, err := svc.GenerateRoster(context.Background(), "c1", RosterFormatCSV)
	assert.True(t, appErrors.Is(err, appErrors.ErrPersistence))
	assert.False(t, appErrors.Is(err, appErrors.ErrClassNotFound))
}

func TestGenerateRosterUnsupportedFormat(t *testing.T) {
	svc, _ := newExportFixture(t)

	_, err := svc.GenerateRoster(context.Background(), "c1", RosterFormat("xlsx"))
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestOpenDownloadRejectsTamperedToken(t *testing.T) {
	svc, waitlist := newExportFixture(t)

	_, err := waitlist.Insert(context.Background(), "c1", "s1", 0)
	require.NoError(t, err)
	result, err := svc.GenerateRoster(context.Background(), "c1", RosterFormatCSV)
	require.NoError(t, err)

	_, err = svc.OpenDownload(result.Token + "x")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
