package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/commshub/internal/db"
	"github.com/pysugar/commshub/internal/drive"
	"github.com/pysugar/commshub/internal/logging"
	"github.com/pysugar/commshub/internal/server/middleware"
)

// maxUploadMemory is how much of a multipart upload is kept in memory before
// spilling to temporary files.
const maxUploadMemory = 32 << 20

// ListFilesHandler lists files, optionally inside ?folder=.
func ListFilesHandler(client *drive.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		pageSize, _ := strconv.Atoi(q.Get("page_size"))
		res := client.ListFiles(r.Context(), middleware.UserID(r.Context()), q.Get("folder"), pageSize, q.Get("page_token"))
		writeResult(w, http.StatusOK, res)
	}
}

// SearchFilesHandler searches files by name with ?q=.
func SearchFilesHandler(client *drive.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		pageSize, _ := strconv.Atoi(q.Get("page_size"))
		res := client.SearchFiles(r.Context(), middleware.UserID(r.Context()), q.Get("q"), pageSize, q.Get("page_token"))
		writeResult(w, http.StatusOK, res)
	}
}

type createFolderRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
}

// CreateFolderHandler creates a folder.
func CreateFolderHandler(client *drive.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createFolderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		res := client.CreateFolder(r.Context(), middleware.UserID(r.Context()), req.Name, req.ParentID)
		writeResult(w, http.StatusCreated, res)
	}
}

// UploadFileHandler uploads the multipart form field "file" into parent_id.
func UploadFileHandler(client *drive.Client, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer file.Close()

		userID := middleware.UserID(r.Context())
		log := logger.WithContext(r.Context())
		upload := drive.Upload{
			Name:     header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Content:  file,
		}
		res := client.UploadFile(r.Context(), userID, upload, r.FormValue("parent_id"), func(p int) {
			log.Debug().Str("user_id", userID).Str("file", header.Filename).Int("progress", p).Msg("upload progress")
		})
		writeResult(w, http.StatusCreated, res)
	}
}

// FileInfoHandler returns metadata of {id}.
func FileInfoHandler(client *drive.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := client.GetFileInfo(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
		writeResult(w, http.StatusOK, res)
	}
}

// DeleteFileHandler deletes {id}.
func DeleteFileHandler(client *drive.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := client.DeleteFile(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"))
		writeResult(w, http.StatusOK, res)
	}
}

type shareRequest struct {
	Role string `json:"role"`
}

// ShareHandler shares {id} with anyone holding the link.
func ShareHandler(client *drive.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req shareRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		res := client.ShareFolder(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"), req.Role)
		writeResult(w, http.StatusOK, res)
	}
}

type employeeFoldersRequest struct {
	ParentID    string   `json:"parent_id"`
	EmployeeIDs []string `json:"employee_ids"`
}

type employeeFoldersResponse struct {
	Created  int                   `json:"created"`
	Failed   int                   `json:"failed"`
	Skipped  int                   `json:"skipped"`
	Outcomes []drive.FolderOutcome `json:"outcomes"`
}

// EmployeeFoldersHandler creates one Drive folder per employee that has none
// yet and stores the folder id on the employee. Employees are processed
// sequentially.
func EmployeeFoldersHandler(client *drive.Client, employees *db.EmployeeStore, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req employeeFoldersRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		all, err := employees.ListEmployees(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		wanted := map[string]bool{}
		for _, id := range req.EmployeeIDs {
			wanted[id] = true
		}

		resp := employeeFoldersResponse{Outcomes: []drive.FolderOutcome{}}
		var reqs []drive.FolderRequest
		for _, e := range all {
			if len(wanted) > 0 && !wanted[e.ID] {
				continue
			}
			if e.DriveFolderID != "" {
				resp.Skipped++
				continue
			}
			reqs = append(reqs, drive.FolderRequest{Key: e.ID, Name: folderName(e.FullName, e.ID)})
		}

		userID := middleware.UserID(r.Context())
		log := logger.WithContext(r.Context())
		for _, o := range client.BulkCreateFolders(r.Context(), userID, req.ParentID, reqs) {
			if o.Result.Success {
				if err := employees.SetEmployeeDriveFolder(r.Context(), o.Key, o.Result.Data.ID); err != nil {
					log.Error().Err(err).Str("employee_id", o.Key).Msg("folder created but not recorded")
				}
				resp.Created++
			} else {
				resp.Failed++
			}
			resp.Outcomes = append(resp.Outcomes, o)
		}

		log.Info().Int("created", resp.Created).Int("failed", resp.Failed).Int("skipped", resp.Skipped).Msg("employee folders processed")
		writeJSON(w, http.StatusOK, resp)
	}
}

func folderName(fullName, id string) string {
	if fullName == "" {
		return fmt.Sprintf("employee-%s", id)
	}
	return fullName
}
