package backend

import (
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/weeknote/pkg/model"
	"gopkg.in/yaml.v3"
)

type sessionFile struct {
	ProjectID string         `yaml:"project_id"`
	Session   *model.Session `yaml:"session"`
}

// DefaultSessionPath returns ~/.config/weeknote/session.yaml or the
// platform equivalent.
func DefaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "weeknote", "session.yaml")
}

// LoadSession reads the cached session of projectID. A missing file or a
// session of another project yields a nil session.
func LoadSession(path, projectID string) (*model.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to read session cache", goerr.V("path", path))
	}

	var file sessionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse session cache", goerr.V("path", path))
	}
	if file.ProjectID != projectID {
		return nil, nil
	}
	return file.Session, nil
}

func SaveSession(path, projectID string, session *model.Session) error {
	data, err := yaml.Marshal(&sessionFile{ProjectID: projectID, Session: session})
	if err != nil {
		return goerr.Wrap(err, "failed to encode session")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return goerr.Wrap(err, "failed to create session cache directory", goerr.V("path", path))
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return goerr.Wrap(err, "failed to write session cache", goerr.V("path", path))
	}
	return nil
}
