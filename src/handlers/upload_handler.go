package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/username/fundfolio/backend/src/config"
	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/security/validation"
	"github.com/username/fundfolio/backend/src/services"
	"github.com/username/fundfolio/backend/src/utils"
)

type UploadHandler struct {
	ledgerService services.LedgerService
}

func NewUploadHandler(service services.LedgerService) *UploadHandler {
	return &UploadHandler{
		ledgerService: service,
	}
}

// HandleUpload ingests a transaction history CSV for the authenticated user.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	file, fileHeader, ok := h.validatedUploadFile(w, r, userID)
	if !ok {
		return
	}
	defer file.Close()

	logger.L.Info("Processing upload request", "userID", userID, "filename", fileHeader.Filename)
	result, err := h.ledgerService.ProcessUpload(file, userID)
	if err != nil {
		if errors.Is(err, services.ErrParsingFailed) {
			logger.L.Warn("Upload processing failed due to CSV parsing errors", "userID", userID, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Error parsing CSV file: %v", err), http.StatusBadRequest)
		} else if errors.Is(err, services.ErrProcessingFailed) {
			logger.L.Warn("Upload processing failed during ledger computation", "userID", userID, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Error processing transactions in file: %v", err), http.StatusBadRequest)
		} else {
			logger.L.Error("Internal error processing upload", "userID", userID, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, "An internal error occurred while processing the file. Please try again later.", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.L.Error("Error encoding JSON response for upload result", "userID", userID, "error", err)
	}
}

// HandleMarketDataUpload ingests an end-of-day market data CSV and rebuilds
// the adjustment series used for factor lookups.
func (h *UploadHandler) HandleMarketDataUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	file, fileHeader, ok := h.validatedUploadFile(w, r, userID)
	if !ok {
		return
	}
	defer file.Close()

	logger.L.Info("Processing market data upload", "userID", userID, "filename", fileHeader.Filename)
	loaded, err := h.ledgerService.LoadMarketData(file)
	if err != nil {
		if errors.Is(err, services.ErrParsingFailed) {
			utils.SendJSONError(w, fmt.Sprintf("Error parsing market data CSV: %v", err), http.StatusBadRequest)
		} else {
			logger.L.Error("Internal error loading market data", "userID", userID, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, "An internal error occurred while loading market data.", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":      "Market data loaded successfully",
		"observations": loaded,
	})
}

// validatedUploadFile applies the shared multipart, size and content-type
// checks. On failure the error response has already been written.
func (h *UploadHandler) validatedUploadFile(w http.ResponseWriter, r *http.Request, userID int64) (multipart.File, *multipart.FileHeader, bool) {
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "userID", userID, "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return nil, nil, false
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		logger.L.Warn("Failed to retrieve file from request", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return nil, nil, false
	}

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		file.Close()
		logger.L.Warn("Uploaded file header reports size too large", "userID", userID, "fileSize", fileHeader.Size, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB (header check)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return nil, nil, false
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		file.Close()
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}

	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		file.Close()
		logger.L.Warn("Server-side file content validation failed", "userID", userID, "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}
	logger.L.Debug("File content validated", "userID", userID, "filename", fileHeader.Filename, "clientType", clientContentType, "detectedType", detectedContentType)

	return file, fileHeader, true
}
