package token

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	clienterrors "github.com/novalearn/go-portal-client/internal/errors"
)

const stateFileName = "session.json"

// persistedState is everything the client keeps on disk: the token pair and a
// small set of UI preferences. Logout clears the lot in one remove.
type persistedState struct {
	Token       *oauth2.Token     `json:"token,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

// FileStore persists the token pair and UI preferences as a JSON file under
// the configured data folder. Writes go through a temp file and rename so a
// crash mid-write never leaves a half-written state file.
type FileStore struct {
	path string
	lock sync.Mutex
}

var _ Store = (*FileStore)(nil)

func NewFileStore(dataFolder string) (*FileStore, error) {
	if err := os.MkdirAll(dataFolder, 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] MkdirAll")
	}
	return &FileStore{path: filepath.Join(dataFolder, stateFileName)}, nil
}

func (fs *FileStore) Get() (*oauth2.Token, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	state, err := fs.read()
	if err != nil {
		return nil, err
	}
	if state.Token == nil || state.Token.AccessToken == "" {
		return nil, clienterrors.ErrNoToken
	}
	return state.Token, nil
}

func (fs *FileStore) Put(t *oauth2.Token) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	state, err := fs.read()
	if err != nil {
		return err
	}
	state.Token = t
	return fs.write(state)
}

// Clear removes the state file, dropping token and preferences together.
// Clearing an already-empty store is a no-op.
func (fs *FileStore) Clear() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileStore.Clear] Remove")
	}
	return nil
}

// Preference returns a stored UI preference, or "" when unset.
func (fs *FileStore) Preference(key string) string {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	state, err := fs.read()
	if err != nil {
		return ""
	}
	return state.Preferences[key]
}

func (fs *FileStore) SetPreference(key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	state, err := fs.read()
	if err != nil {
		return err
	}
	if state.Preferences == nil {
		state.Preferences = make(map[string]string)
	}
	state.Preferences[key] = value
	return fs.write(state)
}

func (fs *FileStore) read() (*persistedState, error) {
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return &persistedState{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[FileStore.read] ReadFile")
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		// A corrupted state file is treated as empty rather than wedging
		// every session operation behind an unreadable file.
		return &persistedState{}, nil
	}
	return &state, nil
}

func (fs *FileStore) write(state *persistedState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[FileStore.write] Marshal")
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileStore.write] WriteFile")
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return errors.Wrap(err, "[FileStore.write] Rename")
	}
	return nil
}
