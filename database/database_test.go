package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisal-service/models"
)

var (
	mockDB *sql.DB
	mock   sqlmock.Sqlmock
	d      *Database
)

func setUp() {
	mockDB, mock, _ = sqlmock.New()
	d = &Database{db: mockDB}
}

func tearDown() {
	mockDB.Close()
}

var it = beforeeach.Create(setUp, tearDown)

func sampleAppraisal() *models.Appraisal {
	report := models.NewNormalizedReport(models.TierBasic)
	report.Overview = "A Victorian teapot."
	return &models.Appraisal{
		ID:        "app-1",
		UserID:    "user-7",
		Tier:      models.TierBasic,
		ImageURLs: []string{"http://h/api/v1/images/a", "http://h/api/v1/images/b"},
		Report:    report,
		CreatedAt: time.Now().UTC(),
	}
}

func TestSaveAppraisal(t *testing.T) {
	it(func() {
		a := sampleAppraisal()
		mock.ExpectExec("INSERT INTO appraisals").
			WithArgs(a.ID, a.UserID, string(a.Tier), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := d.SaveAppraisal(context.Background(), a)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetAppraisal(t *testing.T) {
	it(func() {
		rows := sqlmock.NewRows([]string{"id", "user_id", "tier", "image_urls", "report", "created_at"}).
			AddRow("app-1", "user-7", "basic",
				"http://h/api/v1/images/a\nhttp://h/api/v1/images/b",
				[]byte(`{"tier":"basic","overview":"A Victorian teapot.","identification":{"object_type":"Unknown","era":"Unknown","materials":"Unknown"},"features":{"shape":"Not specified","size":"Not specified","color":"Not specified","materials":"Not specified","notable_features":"Not specified"},"condition":"Not specified","regulations":"Not specified","conclusion":"c","provenance":"Not specified","stylistic_assessment":"Not specified","attribution":"Not specified","value_indicators":"Not specified","follow_up_questions":[],"full_text":""}`),
				time.Now())
		mock.ExpectQuery("SELECT id, user_id, tier, image_urls, report, created_at FROM appraisals").
			WithArgs("app-1").
			WillReturnRows(rows)

		a, err := d.GetAppraisal(context.Background(), "app-1")

		require.NoError(t, err)
		assert.Equal(t, "app-1", a.ID)
		assert.Equal(t, models.TierBasic, a.Tier)
		assert.Len(t, a.ImageURLs, 2)
		assert.Equal(t, "A Victorian teapot.", a.Report.Overview)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetAppraisalNotFound(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT id, user_id, tier, image_urls, report, created_at FROM appraisals").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := d.GetAppraisal(context.Background(), "missing")

		assert.ErrorIs(t, err, sql.ErrNoRows)
	})
}

func TestSaveAndGetImage(t *testing.T) {
	it(func() {
		mock.ExpectExec("INSERT INTO images").
			WithArgs("img-1", "image/jpeg", []byte("pixels")).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := d.SaveImage(context.Background(), "img-1", "image/jpeg", []byte("pixels"))
		require.NoError(t, err)

		rows := sqlmock.NewRows([]string{"content_type", "data"}).AddRow("image/jpeg", []byte("pixels"))
		mock.ExpectQuery("SELECT content_type, data FROM images").
			WithArgs("img-1").
			WillReturnRows(rows)

		contentType, data, err := d.GetImage(context.Background(), "img-1")

		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", contentType)
		assert.Equal(t, []byte("pixels"), data)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSaveAndGetAudio(t *testing.T) {
	it(func() {
		mock.ExpectExec("INSERT INTO audio_summaries").
			WithArgs("aud-1", "app-1", []byte("mp3")).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := d.SaveAudio(context.Background(), "aud-1", "app-1", []byte("mp3"))
		require.NoError(t, err)

		rows := sqlmock.NewRows([]string{"data"}).AddRow([]byte("mp3"))
		mock.ExpectQuery("SELECT data FROM audio_summaries").
			WithArgs("aud-1").
			WillReturnRows(rows)

		data, err := d.GetAudio(context.Background(), "aud-1")

		require.NoError(t, err)
		assert.Equal(t, []byte("mp3"), data)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
