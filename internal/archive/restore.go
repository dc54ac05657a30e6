package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"regexp"
	"strconv"
	"strings"

	"storyforge/internal/asset"
	"storyforge/internal/scene"
	"storyforge/internal/services"
)

var sceneEntry = regexp.MustCompile(`^(images|audios)/Scene_(\d+)\.(png|wav|mp3)$`)

// maxRestoreEntry bounds a single decompressed entry.
const maxRestoreEntry = 64 << 20

// RestoreReport lists what Restore loaded back into a session.
type RestoreReport struct {
	Images     int
	Voices     int
	Thumbnails int
	Music      bool
	Skipped    []string
}

// Restore loads a bundle written from EntriesFromSession back into session as
// inline references. See RestoreFS.
func Restore(data []byte, session *scene.Session) (RestoreReport, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return RestoreReport{}, services.Wrap(services.ErrMalformedInput, "archive", "restore", "open bundle", err)
	}
	return RestoreFS(zr, session)
}

// RestoreFS loads a bundle layout from fsys, which may be an opened zip or an
// extracted directory. Scene entries whose id is not in the session's
// sequence and .error.txt notes are skipped. Script text is restored verbatim.
func RestoreFS(fsys fs.FS, session *scene.Session) (RestoreReport, error) {
	var report RestoreReport
	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return services.Wrap(services.ErrMalformedInput, "archive", "restore", name, err)
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(name, ErrorSuffix) {
			report.Skipped = append(report.Skipped, name)
			return nil
		}
		body, err := readEntry(fsys, name)
		if err != nil {
			return err
		}
		switch {
		case name == ScriptFile:
			session.SetScript(strings.TrimRight(string(body), "\n"))
		case strings.HasPrefix(name, thumbnailsDir+"/"):
			session.AddThumbnail(asset.EncodeDataURI(asset.GuessMIME(name), body))
			report.Thumbnails++
		case strings.HasPrefix(name, backgroundMusic+"."):
			session.SetBackgroundMusic(asset.EncodeDataURI(asset.GuessMIME(name), body))
			report.Music = true
		default:
			m := sceneEntry.FindStringSubmatch(name)
			if m == nil {
				report.Skipped = append(report.Skipped, name)
				return nil
			}
			id, _ := strconv.Atoi(m[2])
			if _, ok := session.SceneByID(id); !ok {
				report.Skipped = append(report.Skipped, name)
				return nil
			}
			kind := scene.KindImage
			if m[1] == audiosDir {
				kind = scene.KindVoice
				report.Voices++
			} else {
				report.Images++
			}
			session.SetAsset(kind, id, asset.EncodeDataURI(asset.GuessMIME(path.Base(name)), body))
			session.SetStatus(scene.Key{SceneID: id, Kind: kind}, scene.Succeeded, nil)
		}
		return nil
	})
	return report, err
}

func readEntry(fsys fs.FS, name string) ([]byte, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, services.Wrap(services.ErrMalformedInput, "archive", "restore", name, err)
	}
	defer f.Close()
	body, err := io.ReadAll(io.LimitReader(f, maxRestoreEntry+1))
	if err != nil {
		return nil, services.Wrap(services.ErrMalformedInput, "archive", "restore", name, err)
	}
	if len(body) > maxRestoreEntry {
		return nil, services.Wrap(services.ErrMalformedInput, "archive", "restore",
			fmt.Sprintf("%s exceeds %d bytes", name, maxRestoreEntry), nil)
	}
	return body, nil
}
