package routes

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-document-platform/internal/config"
	"rag-document-platform/internal/logger"
	"rag-document-platform/middleware"
	"rag-document-platform/models"
	"rag-document-platform/services"
	"rag-document-platform/utils"
)

// UnsupportedFileTypeMessage is the fixed rejection for non PDF/CSV/TXT uploads
const UnsupportedFileTypeMessage = "Only PDF, CSV and TXT files are supported"

var allowedExtensions = []string{".pdf", ".csv", ".txt"}

// Uploader stores an uploaded file; ingestion is triggered by the storage event
type Uploader interface {
	Put(ctx context.Context, bucket, name string, r io.Reader) error
}

// Answerer answers a question from the indexed documents
type Answerer interface {
	Answer(ctx context.Context, req models.QueryRequest) (*models.Answer, error)
}

func SetupAPIRoutes(router *gin.Engine, cfg *config.Config, uploads Uploader, answerer Answerer) {
	api := router.Group("/api")

	api.POST("/upload", middleware.RequestSizeLimit(cfg.MaxFileSize+(1<<20)), handleUpload(cfg, uploads))
	api.POST("/query", handleQuery(answerer))
}

func handleUpload(cfg *config.Config, uploads Uploader) gin.HandlerFunc {
	return func(c *gin.Context) {
		header, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				utils.RespondWithTooLarge(c, utils.CodeFileTooLarge, "File size exceeds maximum limit", cfg.MaxFileSize, 0)
				return
			}
			utils.RespondWithBadRequest(c, "No file provided", gin.H{"field": "file"})
			return
		}

		name := utils.SanitizeFileName(header.Filename)
		if name == "" {
			utils.RespondWithBadRequest(c, "Invalid file name", nil)
			return
		}
		docType, ok := models.DetectDocumentType(name)
		if !ok {
			utils.RespondWithError(c, http.StatusBadRequest, utils.CodeUnsupportedFile,
				UnsupportedFileTypeMessage, gin.H{"allowed": allowedExtensions})
			return
		}
		if header.Size == 0 {
			utils.RespondWithBadRequest(c, "File is empty", nil)
			return
		}
		if header.Size > cfg.MaxFileSize {
			utils.RespondWithTooLarge(c, utils.CodeFileTooLarge, "File size exceeds maximum limit", cfg.MaxFileSize, header.Size)
			return
		}

		file, err := header.Open()
		if err != nil {
			logger.Error("Failed to open uploaded file", "error", err, "filename", name)
			utils.RespondWithInternalError(c, "Failed to read uploaded file")
			return
		}
		defer file.Close()

		ctx, cancel := utils.WithUploadTimeout(c.Request.Context())
		defer cancel()
		if err := uploads.Put(ctx, cfg.UploadBucket, name, file); err != nil {
			logger.Error("Upload failed",
				"error", err,
				"filename", name,
				"bucket", cfg.UploadBucket,
				"request_id", middleware.GetRequestID(c),
			)
			utils.RespondWithInternalError(c, "Failed to upload file")
			return
		}

		logger.Info("File uploaded",
			"filename", name,
			"document_type", docType,
			"size", header.Size,
			"bucket", cfg.UploadBucket,
		)
		c.JSON(http.StatusOK, models.UploadResponse{
			Message:  "File uploaded successfully",
			Filename: name,
		})
	}
}

func handleQuery(answerer Answerer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		answer, err := answerer.Answer(c.Request.Context(), req)
		if err != nil {
			if errors.Is(err, services.ErrInvalidRequest) {
				utils.RespondWithBadRequest(c, invalidRequestMessage(err), nil)
				return
			}
			logger.Error("Query failed", "error", err, "request_id", middleware.GetRequestID(c))
			utils.RespondWithInternalError(c, "Failed to answer the question")
			return
		}

		c.JSON(http.StatusOK, answer)
	}
}

// invalidRequestMessage returns the client-facing cause of a rejected request
func invalidRequestMessage(err error) string {
	var failure *services.Failure
	if errors.As(err, &failure) && failure.Err != nil {
		return failure.Err.Error()
	}
	return err.Error()
}
