package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

type publishRequest struct {
	Name      string `json:"name"`
	ProjectID string `json:"projectId"`
}

// PublishExtract uploads a local extract file as a datasource under the named
// project, creating or overwriting it depending on overwrite. Resolution and
// transport failures are logged and reported through the boolean result; the
// call is non-fatal to the caller by contract. The returned entity describes
// the published datasource when ok is true.
func (s *Session) PublishExtract(ctx context.Context, filePath, datasourceName, projectName string, overwrite bool) (Entity, bool) {
	project, err := s.ResolveByName(ctx, KindProject, projectName)
	if err != nil {
		s.logger.Error("unable to resolve target project", zap.String("project", projectName), zap.Error(err))
		return Entity{}, false
	}

	s.logger.Info("publishing extract as datasource",
		zap.String("file", filePath),
		zap.String("datasource", datasourceName),
		zap.String("project", projectName),
		zap.Bool("overwrite", overwrite))

	published, err := s.uploadDatasource(ctx, filePath, datasourceName, project.ID, overwrite)
	if err != nil {
		s.logger.Error("unable to publish datasource", zap.String("datasource", datasourceName), zap.Error(err))
		return Entity{}, false
	}

	s.logger.Info("published extract as datasource",
		zap.String("datasource", published.Name),
		zap.String("datasource_id", published.ID),
		zap.String("project", projectName))
	return published, true
}

func (s *Session) uploadDatasource(ctx context.Context, filePath, datasourceName, projectID string, overwrite bool) (Entity, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return Entity{}, fmt.Errorf("failed to open extract file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	meta, err := json.Marshal(publishRequest{Name: datasourceName, ProjectID: projectID})
	if err != nil {
		return Entity{}, fmt.Errorf("failed to encode publish request: %w", err)
	}
	if err := mw.WriteField("datasource", string(meta)); err != nil {
		return Entity{}, fmt.Errorf("failed to write publish metadata: %w", err)
	}

	part, err := mw.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return Entity{}, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return Entity{}, fmt.Errorf("failed to read extract file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Entity{}, fmt.Errorf("failed to finalize upload body: %w", err)
	}

	url := fmt.Sprintf("%s/api/sites/%s/datasources/publish?overwrite=%t", s.serverURL, s.siteID, overwrite)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return Entity{}, fmt.Errorf("failed to build publish request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var published Entity
	if err := s.do(req, &published); err != nil {
		return Entity{}, err
	}
	return published, nil
}
