package services

import (
	"NCDEarlyDetect/internal/models"
	"NCDEarlyDetect/internal/storage/memory"
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type progressRecorder struct {
	mu     sync.Mutex
	stages []models.UploadStage
	last   models.UploadJob
}

func (r *progressRecorder) record(job models.UploadJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, job.Stage)
	r.last = job
}

func (r *progressRecorder) snapshot() ([]models.UploadStage, models.UploadJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.UploadStage(nil), r.stages...), r.last
}

func newUploadFixture(t *testing.T) (*UploadService, *memory.Store, *fakeImages) {
	t.Helper()
	store := memory.NewStore(false)
	images := newFakeImages()
	svc, err := NewUploadService(testConfig(), store, images)
	require.NoError(t, err)
	return svc, store, images
}

func TestUploadStartValidatesFile(t *testing.T) {
	svc, _, _ := newUploadFixture(t)

	tests := []struct {
		name string
		req  UploadRequest
	}{
		{"empty name", UploadRequest{Data: []byte("x")}},
		{"empty data", UploadRequest{FileName: "scan.png"}},
		{"too large", UploadRequest{FileName: "scan.png", Data: make([]byte, (1<<20)+1)}},
		{"unsupported extension", UploadRequest{FileName: "scan.gif", Data: []byte("GIF89a")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := svc.Start(tt.req, nil)
			assert.ErrorIs(t, err, ErrInvalidUpload)
			assert.Nil(t, job)
		})
	}
}

func TestUploadPipelineCreatesPendingCase(t *testing.T) {
	svc, store, images := newUploadFixture(t)
	rec := &progressRecorder{}

	job, err := svc.Start(UploadRequest{
		FileName:    "chest.png",
		Data:        samplePNG(t),
		PatientID:   "UG-5000",
		PatientName: "J. Okello",
		Age:         51,
		Gender:      "M",
		Focus:       "Chest X-Ray",
		Anonymize:   true,
	}, rec.record)
	require.NoError(t, err)
	assert.Equal(t, models.UploadReceived, job.Stage)
	svc.Wait()

	stages, last := rec.snapshot()
	assert.Equal(t, []models.UploadStage{
		models.UploadReceived,
		models.UploadAnonymizing,
		models.UploadStoring,
		models.UploadQueued,
		models.UploadCompleted,
	}, stages)
	assert.Equal(t, 100, last.Progress)
	require.NotEmpty(t, last.CaseID)

	got, err := svc.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadCompleted, got.Stage)

	c, err := store.GetCase(last.CaseID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusPending, c.Status)
	assert.Equal(t, models.ModalityPNG, c.Modality)
	assert.Equal(t, "Chest X-Ray", c.Focus)
	assert.Equal(t, 1, images.count())

	stored, err := images.ReadImage(c.ImagePath)
	require.NoError(t, err)
	_, format, err := image.Decode(bytes.NewReader(stored))
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	assert.ErrorIs(t, svc.Cancel(job.ID), ErrUploadFinished)
}

func TestUploadAnonymizeReencodesJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil))
	// 附加一段假 EXIF 於 SOI 之後
	exif := append([]byte{0xFF, 0xE1, 0x00, 0x0C}, []byte("Exif\x00\x00secret")[:10]...)
	original := append(append([]byte{0xFF, 0xD8}, exif...), buf.Bytes()[2:]...)

	cleaned, err := stripImageMetadata(original, models.ModalityJPEG)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(cleaned, []byte("Exif")))

	dicom := []byte("DICM-not-an-image")
	out, err := stripImageMetadata(dicom, models.ModalityDICOM)
	require.NoError(t, err)
	assert.Equal(t, dicom, out)
}

func TestUploadPipelineFailsOnUndecodableImage(t *testing.T) {
	svc, store, _ := newUploadFixture(t)
	job, err := svc.Start(UploadRequest{FileName: "broken.png", Data: []byte("not a png"), Anonymize: true}, nil)
	require.NoError(t, err)
	svc.Wait()

	got, err := svc.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadFailed, got.Stage)
	assert.NotEmpty(t, got.Error)

	cases, err := store.ListCases("")
	require.NoError(t, err)
	assert.Empty(t, cases)
}

func TestUploadPipelineFailsWhenStorageFails(t *testing.T) {
	svc, _, images := newUploadFixture(t)
	images.saveErr = errors.New("disk full")

	job, err := svc.Start(UploadRequest{FileName: "scan.dcm", Data: []byte("DICM")}, nil)
	require.NoError(t, err)
	svc.Wait()

	got, err := svc.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadFailed, got.Stage)
	assert.Contains(t, got.Error, "disk full")
}

func TestUploadCancelRemovesStoredImage(t *testing.T) {
	svc, store, images := newUploadFixture(t)
	images.block = make(chan struct{})
	images.entered = make(chan struct{})
	rec := &progressRecorder{}

	job, err := svc.Start(UploadRequest{FileName: "scan.dcm", Data: []byte("DICM")}, rec.record)
	require.NoError(t, err)
	<-images.entered

	require.NoError(t, svc.Cancel(job.ID))
	close(images.block)
	svc.Wait()

	got, err := svc.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadCancelled, got.Stage)
	assert.Equal(t, 0, images.count())

	cases, err := store.ListCases("")
	require.NoError(t, err)
	assert.Empty(t, cases)

	stages, _ := rec.snapshot()
	assert.Equal(t, models.UploadCancelled, stages[len(stages)-1])
	assert.NotContains(t, stages, models.UploadCompleted)
}

func TestUploadCancelAtQueuedStageCreatesNoCase(t *testing.T) {
	svc, store, images := newUploadFixture(t)
	rec := &progressRecorder{}
	var cancelErr error
	cancelled := false

	job, err := svc.Start(UploadRequest{FileName: "scan.dcm", Data: []byte("DICM")}, func(j models.UploadJob) {
		rec.record(j)
		if j.Stage == models.UploadQueued && !cancelled {
			cancelled = true
			cancelErr = svc.Cancel(j.ID)
		}
	})
	require.NoError(t, err)
	svc.Wait()

	require.True(t, cancelled)
	require.NoError(t, cancelErr)

	got, err := svc.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadCancelled, got.Stage)
	assert.Equal(t, 0, images.count())

	cases, err := store.ListCases("")
	require.NoError(t, err)
	assert.Empty(t, cases)

	stages, _ := rec.snapshot()
	assert.NotContains(t, stages, models.UploadCompleted)
}

// blockingCaseStore 讓 CreateCase 停住，模擬建立病例中的任務
type blockingCaseStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingCaseStore) CreateCase(c *models.PatientCase) error {
	close(b.entered)
	<-b.release
	return b.Store.CreateCase(c)
}

func TestUploadCancelRejectedWhileCreatingCase(t *testing.T) {
	store := &blockingCaseStore{Store: memory.NewStore(false), entered: make(chan struct{}), release: make(chan struct{})}
	svc, err := NewUploadService(testConfig(), store, newFakeImages())
	require.NoError(t, err)

	job, err := svc.Start(UploadRequest{FileName: "scan.dcm", Data: []byte("DICM")}, nil)
	require.NoError(t, err)
	<-store.entered

	assert.ErrorIs(t, svc.Cancel(job.ID), ErrUploadFinished)
	close(store.release)
	svc.Wait()

	got, err := svc.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadCompleted, got.Stage)
	_, err = store.GetCase(got.CaseID)
	assert.NoError(t, err)
}

func TestUploadUnknownJob(t *testing.T) {
	svc, _, _ := newUploadFixture(t)
	_, err := svc.Get("missing")
	assert.ErrorIs(t, err, ErrUploadNotFound)
	assert.ErrorIs(t, svc.Cancel("missing"), ErrUploadNotFound)
}
