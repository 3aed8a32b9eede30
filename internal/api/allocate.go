package api

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/CFabianPBB/budget-allocation-app/internal/allocation"
	"github.com/CFabianPBB/budget-allocation-app/internal/metrics"
	"github.com/CFabianPBB/budget-allocation-app/internal/models"
	"github.com/CFabianPBB/budget-allocation-app/internal/spreadsheet"
	"github.com/CFabianPBB/budget-allocation-app/internal/store"
	"github.com/CFabianPBB/budget-allocation-app/internal/ws"
)

const (
	programInventoryField = "programInventory"
	departmentBudgetField = "departmentBudget"

	defaultMaxUploadBytes = 32 << 20
	// maxFormMemory is how much of the form is buffered in memory before
	// parts spill to temporary files.
	maxFormMemory = 8 << 20

	missingFilesMessage = "Please upload both required files"
)

type allocateResponse struct {
	Success      bool               `json:"success"`
	Message      string             `json:"message"`
	DownloadLink string             `json:"downloadLink"`
	RunID        string             `json:"runId"`
	Summary      allocation.Summary `json:"summary"`
}

// AllocateHandler runs the allocation pipeline on uploaded spreadsheets.
// Runs are serialized because every run replaces the same result workbook.
type AllocateHandler struct {
	Pipeline       *allocation.Pipeline
	Store          *store.ResultStore
	Hub            *ws.Hub
	Metrics        *metrics.Registry
	Logger         *zap.Logger
	MaxUploadBytes int64

	mu sync.Mutex
}

// Allocate handles POST /allocate-budget (multipart form upload).
func (h *AllocateHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if h.Pipeline == nil || h.Store == nil {
		sendError(w, http.StatusServiceUnavailable, "allocation service not configured")
		return
	}

	maxBytes := h.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge), strings.Contains(err.Error(), "request body too large"):
			sendError(w, http.StatusRequestEntityTooLarge, "upload too large")
		case errors.Is(err, http.ErrNotMultipart):
			sendError(w, http.StatusBadRequest, missingFilesMessage)
		default:
			sendError(w, http.StatusBadRequest, "invalid multipart form")
		}
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	input, err := readUploads(r)
	if err != nil {
		if errors.Is(err, errMissingUpload) {
			sendError(w, http.StatusBadRequest, missingFilesMessage)
			return
		}
		if allocation.IsInputError(err) {
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("failed to read uploads", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "failed to read uploaded files")
		return
	}

	runID := uuid.NewString()
	observer := newHubObserver(h.Hub, runID, logger)
	input.Observer = observer
	runLogger := logger.With(zap.String("run_id", runID))

	h.mu.Lock()
	defer h.mu.Unlock()

	runLogger.Info("allocation run started",
		zap.Int("programs", len(input.Programs)),
		zap.Int("budgets", len(input.Budgets)),
	)
	observer.runStarted(len(input.Programs))
	h.recordStarted()
	started := time.Now()

	result, err := h.Pipeline.Run(r.Context(), input)
	if err != nil {
		observer.runFailed(err)
		if allocation.IsInputError(err) {
			h.recordRejected()
			runLogger.Info("allocation run rejected", zap.Error(err))
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.recordFailed()
		runLogger.Error("allocation run failed", zap.Error(err))
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := h.Store.Save(runID, result.Rows); err != nil {
		h.recordFailed()
		observer.runFailed(err)
		runLogger.Error("failed to store allocation result", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "failed to write result workbook")
		return
	}
	h.recordCompleted(result, time.Since(started))

	sendJSON(w, http.StatusOK, allocateResponse{
		Success:      true,
		Message:      "Budget allocation completed successfully",
		DownloadLink: "/download-result",
		RunID:        runID,
		Summary:      result.Summary,
	})
}

func (h *AllocateHandler) recordStarted() {
	if h.Metrics != nil {
		h.Metrics.RecordRunStarted()
	}
}

func (h *AllocateHandler) recordRejected() {
	if h.Metrics != nil {
		h.Metrics.RecordRunRejected()
	}
}

func (h *AllocateHandler) recordFailed() {
	if h.Metrics != nil {
		h.Metrics.RecordRunFailed()
	}
}

func (h *AllocateHandler) recordCompleted(result allocation.RunResult, latency time.Duration) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.RecordRunCompleted(latency)
	for _, department := range result.Departments {
		var oracleChunks, fallbackChunks int
		for _, chunk := range department.Chunks {
			if chunk.Source == models.SourceOracle {
				oracleChunks++
			} else {
				fallbackChunks++
			}
		}
		h.Metrics.RecordDepartment(department.Department, len(department.Rows), oracleChunks, fallbackChunks, department.Budget)
	}
}

var errMissingUpload = errors.New("missing upload")

func readUploads(r *http.Request) (allocation.RunInput, error) {
	programFile, programHeader, err := r.FormFile(programInventoryField)
	if err != nil {
		return allocation.RunInput{}, errMissingUpload
	}
	defer programFile.Close()

	budgetFile, budgetHeader, err := r.FormFile(departmentBudgetField)
	if err != nil {
		return allocation.RunInput{}, errMissingUpload
	}
	defer budgetFile.Close()

	programs, err := readPrograms(programFile, programHeader)
	if err != nil {
		return allocation.RunInput{}, err
	}
	budgets, err := readBudgets(budgetFile, budgetHeader)
	if err != nil {
		return allocation.RunInput{}, err
	}
	return allocation.RunInput{Programs: programs, Budgets: budgets}, nil
}

func readPrograms(file multipart.File, header *multipart.FileHeader) ([]models.Program, error) {
	programs, err := spreadsheet.ReadPrograms(file, header.Filename)
	if err != nil {
		return nil, annotateInputError(err, "program inventory")
	}
	return programs, nil
}

func readBudgets(file multipart.File, header *multipart.FileHeader) ([]models.DepartmentBudget, error) {
	budgets, err := spreadsheet.ReadBudgets(file, header.Filename)
	if err != nil {
		return nil, annotateInputError(err, "department budget")
	}
	return budgets, nil
}

// annotateInputError names the upload a sheet-level input error came from.
func annotateInputError(err error, upload string) error {
	var inputErr *allocation.InputError
	if !errors.As(err, &inputErr) || inputErr.Row > 0 {
		return err
	}
	return &allocation.InputError{
		Department: inputErr.Department,
		Message:    upload + ": " + inputErr.Message,
	}
}
