package dll

import (
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/steam-gameloader-go/internal/events"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
)

type fakeLocator struct {
	roots   []string
	detects int
	clears  int
}

func (f *fakeLocator) Detect(context.Context) (string, error) {
	f.detects++
	if len(f.roots) == 0 {
		return "", errors.New("steam not found")
	}
	root := f.roots[0]
	if len(f.roots) > 1 && f.clears > 0 {
		root = f.roots[1]
	}
	return root, nil
}

func (f *fakeLocator) Clear() { f.clears++ }

func fakeDLL(size int) []byte {
	data := make([]byte, size)
	copy(data, "MZ")
	for i := 2; i < size; i++ {
		data[i] = byte(i)
	}
	return data
}

const b64Path = "/app/config/hid_dll_base64.txt"

func newManager(t *testing.T, fs afero.Fs, loc *fakeLocator, pub events.Publisher) *Manager {
	t.Helper()
	m := NewManager(fs, loc, pub, Config{}, logger.Nop())
	m.candidates = func() []string { return []string{"/missing/hid_dll_base64.txt", b64Path} }
	m.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return m
}

func steamRoot(t *testing.T, fs afero.Fs, root string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Join(root, "steamapps"), 0o755))
	require.NoError(t, fs.MkdirAll(filepath.Join(root, "config"), 0o755))
}

func TestVerify(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := newManager(t, fs, &fakeLocator{}, nil)

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"valid", fakeDLL(4096), false},
		{"exactly 1KB", fakeDLL(1024), true},
		{"too small", fakeDLL(512), true},
		{"no MZ header", append([]byte("PK"), make([]byte, 4094)...), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/dll/" + strings.ReplaceAll(tt.name, " ", "_")
			require.NoError(t, afero.WriteFile(fs, path, tt.data, 0o644))
			err := m.Verify(path)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidDLL)
			} else {
				require.NoError(t, err)
			}
		})
	}

	require.Error(t, m.Verify("/dll/none"))
}

func TestCreateWritesAndBacksUp(t *testing.T) {
	fs := afero.NewMemMapFs()
	hub := events.NewHub()
	sub, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	steamRoot(t, fs, "/steam")
	require.NoError(t, afero.WriteFile(fs, "/steam/hid.dll", []byte("broken"), 0o644))

	payload := fakeDLL(3000)
	encoded := base64.StdEncoding.EncodeToString(payload)
	encoded = strings.TrimRight(encoded, "=")
	require.NoError(t, afero.WriteFile(fs, b64Path, []byte(encoded[:40]+"\n"+encoded[40:]+"\n"), 0o644))

	m := newManager(t, fs, &fakeLocator{roots: []string{"/steam"}}, hub)

	written, err := m.Create(context.Background(), "/steam")
	require.NoError(t, err)
	assert.True(t, written)

	data, err := afero.ReadFile(fs, "/steam/hid.dll")
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	backup, err := afero.ReadFile(fs, "/steam/otosteam_backups/20250102_030405_hid.dll.backup")
	require.NoError(t, err)
	assert.Equal(t, "broken", string(backup))

	select {
	case ev := <-sub:
		assert.Equal(t, events.DLLRepaired, ev.Type)
	default:
		t.Fatal("expected a dll.repaired event")
	}

	written, err = m.Create(context.Background(), "/steam")
	require.NoError(t, err)
	assert.False(t, written)
}

func TestCreateRejectsInvalidRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/notsteam", 0o755))
	m := newManager(t, fs, &fakeLocator{}, nil)

	_, err := m.Create(context.Background(), "/notsteam")
	require.Error(t, err)

	_, err = m.Create(context.Background(), "")
	require.Error(t, err)
}

func TestCreateWithoutBase64(t *testing.T) {
	fs := afero.NewMemMapFs()
	steamRoot(t, fs, "/steam")
	m := newManager(t, fs, &fakeLocator{roots: []string{"/steam"}}, nil)

	_, err := m.Create(context.Background(), "/steam")
	require.ErrorIs(t, err, ErrBase64NotFound)

	// The miss is remembered until Reset.
	require.NoError(t, afero.WriteFile(fs, b64Path, []byte(base64.StdEncoding.EncodeToString(fakeDLL(2048))), 0o644))
	_, err = m.Create(context.Background(), "/steam")
	require.ErrorIs(t, err, ErrBase64NotFound)

	m.Reset(context.Background())
	written, err := m.Create(context.Background(), "/steam")
	require.NoError(t, err)
	assert.True(t, written)
}

func TestRecreateFallsBackToRedetectedRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	steamRoot(t, fs, "/steam2")
	require.NoError(t, afero.WriteFile(fs, b64Path, []byte(base64.StdEncoding.EncodeToString(fakeDLL(2048))), 0o644))

	loc := &fakeLocator{roots: []string{"/stale", "/steam2"}}
	m := newManager(t, fs, loc, nil)

	require.NoError(t, m.Recreate(context.Background(), ""))
	assert.Equal(t, 1, loc.clears)
	require.NoError(t, m.Verify("/steam2/hid.dll"))
}

func TestStatusAndInitialize(t *testing.T) {
	fs := afero.NewMemMapFs()
	steamRoot(t, fs, "/steam")
	require.NoError(t, afero.WriteFile(fs, b64Path, []byte(base64.StdEncoding.EncodeToString(fakeDLL(2048))), 0o644))

	loc := &fakeLocator{roots: []string{"/steam"}}
	m := newManager(t, fs, loc, nil)
	ctx := context.Background()

	st := m.Status(ctx)
	assert.True(t, st.SteamFound)
	assert.True(t, st.Base64FileFound)
	assert.False(t, st.Exists)
	assert.True(t, st.Writable)
	assert.Equal(t, "/steam/hid.dll", st.Path)
	assert.False(t, m.Simple(ctx).Ready)

	res := m.Initialize(ctx)
	assert.True(t, res.Success)
	assert.True(t, res.DLLCreated)
	assert.Empty(t, res.Errors)

	st = m.Status(ctx)
	assert.True(t, st.Valid)
	assert.Equal(t, int64(2048), st.Size)
	assert.False(t, st.BackupExists)
	assert.True(t, m.Simple(ctx).Ready)
	assert.Contains(t, m.Report(ctx), "DLL valida: SIM")

	detects := loc.detects
	require.NoError(t, fs.Remove("/steam/hid.dll"))
	again := m.Initialize(ctx)
	assert.Equal(t, res, again)
	assert.Equal(t, detects, loc.detects)

	m.Reset(ctx)
	res = m.Initialize(ctx)
	assert.True(t, res.Success)
	require.NoError(t, m.Verify("/steam/hid.dll"))
}

func TestInitializeWithoutSteam(t *testing.T) {
	m := newManager(t, afero.NewMemMapFs(), &fakeLocator{}, nil)

	res := m.Initialize(context.Background())
	assert.False(t, res.Success)
	assert.False(t, res.SteamFound)
	assert.Equal(t, []string{"Steam nao encontrado"}, res.Errors)
	assert.Contains(t, m.Report(context.Background()), "Steam encontrado: NAO")
}
