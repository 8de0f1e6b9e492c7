// Package handlers wires the proctoring flows to the Gin router.
package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/exam-proctor/internal/detector"
	"github.com/example/exam-proctor/internal/facestore"
	"github.com/example/exam-proctor/internal/repository"
	"github.com/example/exam-proctor/internal/usecase"
)

// MaxUploadSize bounds a single frame or sample image upload.
const MaxUploadSize = 10 << 20

// MinRegistrationImages is the API-boundary minimum for registration samples.
const MinRegistrationImages = 3

// RegisterRoutes wires the HTTP handlers to the Gin router. Health and
// metrics stay public; everything under /api requires a valid bearer token.
func RegisterRoutes(router *gin.Engine, monitoring *usecase.MonitoringUseCase, verification *usecase.VerificationUseCase, students *usecase.StudentUseCase, metricsHandler http.Handler, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	api := router.Group("/api", authMiddleware)

	api.POST("/monitor", func(c *gin.Context) {
		studentID := strings.TrimSpace(c.PostForm("student_id"))
		if studentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student_id is required"})
			return
		}
		examPeriodID, ok := formInt64(c, "exam_period_id")
		if !ok {
			return
		}
		submissionID, ok := formInt64(c, "submission_id")
		if !ok {
			return
		}
		image, ok := readImageFile(c, "image")
		if !ok {
			return
		}

		result, err := monitoring.Monitor(c.Request.Context(), usecase.MonitorRequest{
			StudentID:    studentID,
			ExamPeriodID: examPeriodID,
			SubmissionID: submissionID,
			Image:        image,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	api.POST("/students/verify/before", func(c *gin.Context) {
		studentID := strings.TrimSpace(c.PostForm("student_id"))
		if studentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student_id is required"})
			return
		}
		threshold := 0.0
		if raw := c.PostForm("threshold"); raw != "" {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold value"})
				return
			}
			if parsed < 0.0 || parsed > 1.0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be between 0.0 and 1.0"})
				return
			}
			threshold = parsed
		}
		image, ok := readImageFile(c, "image")
		if !ok {
			return
		}

		outcome, err := verification.VerifyStudent(c.Request.Context(), studentID, image, threshold)
		if err != nil {
			respondError(c, err)
			return
		}
		if outcome.Verified {
			c.JSON(http.StatusOK, outcome)
			return
		}
		c.JSON(http.StatusUnauthorized, outcome)
	})

	api.POST("/students/register", func(c *gin.Context) {
		name := c.PostForm("name")
		studentID := c.PostForm("student_id")
		email := c.PostForm("email")

		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form is required"})
			return
		}
		files := form.File["images"]
		if len(files) < MinRegistrationImages {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at least 3 images are required"})
			return
		}
		images := make([][]byte, 0, len(files))
		for _, file := range files {
			data, ok := readFileHeader(c, file)
			if !ok {
				return
			}
			images = append(images, data)
		}

		summary, err := students.Register(c.Request.Context(), name, studentID, email, images)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, summary)
	})

	api.GET("/students", func(c *gin.Context) {
		list := students.List()
		c.JSON(http.StatusOK, gin.H{"total": len(list), "students": list})
	})

	api.GET("/students/:identifier", func(c *gin.Context) {
		info, err := students.Get(c.Param("identifier"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	})

	api.DELETE("/students/:identifier", func(c *gin.Context) {
		name, total, err := students.Delete(c.Param("identifier"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":        "student " + name + " deleted successfully",
			"total_students": total,
		})
	})

	api.GET("/submissions/:id/violations", func(c *gin.Context) {
		submissionID, ok := paramInt64(c, "id")
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		violations, err := monitoring.Violations(c.Request.Context(), submissionID, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"total": len(violations), "violations": violations})
	})

	api.GET("/submissions/:id/summary", func(c *gin.Context) {
		submissionID, ok := paramInt64(c, "id")
		if !ok {
			return
		}
		summary, err := monitoring.Summary(c.Request.Context(), submissionID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func formInt64(c *gin.Context, field string) (int64, bool) {
	raw := c.PostForm(field)
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " is required"})
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid value for " + field})
		return 0, false
	}
	return value, true
}

func paramInt64(c *gin.Context, name string) (int64, bool) {
	value, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return value, true
}

func readImageFile(c *gin.Context, field string) ([]byte, bool) {
	if c.Request.ContentLength > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return nil, false
	}
	file, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " file is required"})
		return nil, false
	}
	return readFileHeader(c, file)
}

func readFileHeader(c *gin.Context, file *multipart.FileHeader) ([]byte, bool) {
	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return nil, false
	}
	if ct := file.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only image uploads are supported"})
		return nil, false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open upload"})
		return nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return nil, false
	}
	return data, true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrStudentNotFound),
		errors.Is(err, usecase.ErrStudentNotFound),
		errors.Is(err, repository.ErrSummaryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, detector.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "detection service unavailable"})
	case errors.Is(err, facestore.ErrDuplicateIdentity):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, usecase.ErrNameRequired),
		errors.Is(err, usecase.ErrStudentIDRequired),
		errors.Is(err, usecase.ErrInvalidEmail),
		errors.Is(err, usecase.ErrStudentIDRegistered),
		errors.Is(err, usecase.ErrNoUsableFaces),
		errors.Is(err, facestore.ErrNoSamples),
		errors.Is(err, facestore.ErrDimensionMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
