package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"mailvault/pkg/logger"
)

// hashChunkSize bounds memory per worker: files stream through the digest
// in fixed-size chunks and are never buffered whole.
const hashChunkSize = 64 * 1024

// HashJob names one file to digest.
type HashJob struct {
	// AbsPath is where the file lives on disk
	AbsPath string
	// RelPath is the path recorded in the manifest
	RelPath string
}

// HashResult is the outcome of hashing one file.
type HashResult struct {
	Job        HashJob
	SHA256     string
	SizeBytes  int64
	ModifiedAt time.Time
	Err        error
}

// Pool fans file hashing out over a fixed number of workers. Hashing has
// no shared mutable state per file, so workers never coordinate beyond the
// job and result channels.
type Pool struct {
	numWorkers  int
	jobQueue    chan HashJob
	resultQueue chan HashResult
	wg          sync.WaitGroup
	logger      logger.Logger
}

// NewPool creates a hashing pool with the given number of workers.
func NewPool(numWorkers int, log logger.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Pool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan HashJob, numWorkers*2),
		resultQueue: make(chan HashResult, numWorkers),
		logger:      log,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	p.logger.DebugWithFields("starting hash pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues a file for hashing. Must not be called after Stop.
func (p *Pool) Submit(job HashJob) {
	p.jobQueue <- job
}

// Stop signals that no more jobs are coming and, once the workers drain
// the queue, closes the result channel.
func (p *Pool) Stop() {
	close(p.jobQueue)
	go func() {
		p.wg.Wait()
		close(p.resultQueue)
	}()
}

// Results returns the channel results arrive on. It is closed after Stop
// once all pending jobs have finished.
func (p *Pool) Results() <-chan HashResult {
	return p.resultQueue
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		p.resultQueue <- p.processJob(job, id)
	}
}

func (p *Pool) processJob(job HashJob, workerID int) HashResult {
	result := HashResult{Job: job}

	digest, size, modTime, err := HashFile(job.AbsPath)
	if err != nil {
		result.Err = err
		p.logger.WarnWithFields("failed to hash file", map[string]interface{}{
			"worker_id": workerID,
			"path":      job.RelPath,
			"error":     err.Error(),
		})
		return result
	}

	result.SHA256 = digest
	result.SizeBytes = size
	result.ModifiedAt = modTime
	return result
}

// HashFile computes the streamed SHA-256 digest of a file along with its
// size and modification time.
func HashFile(path string) (digest string, size int64, modTime time.Time, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, time.Time{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", 0, time.Time{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, file, buf); err != nil {
		return "", 0, time.Time{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), info.Size(), info.ModTime(), nil
}
