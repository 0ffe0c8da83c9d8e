package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP fetcher. URL names the drop directory, e.g.
// ftp://reports.esms.vn/outbound. Empty User logs in anonymously.
type FTPOptions struct {
	URL      string
	User     string
	Password string
	Timeout  time.Duration
}

// ftpConn is the part of *ftp.ServerConn the fetcher uses.
type ftpConn interface {
	List(path string) ([]*ftp.Entry, error)
	Retr(path string) (*ftp.Response, error)
	Quit() error
}

type dialFunc func(ctx context.Context, host string, opts FTPOptions) (ftpConn, error)

// FTPFetcher lists and downloads provider reports over FTP.
type FTPFetcher struct {
	opts FTPOptions
	host string
	dir  string
	dial dialFunc
}

// NewFTPFetcher validates opts and returns a fetcher for the drop directory.
func NewFTPFetcher(opts FTPOptions) (*FTPFetcher, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	host, dir, err := parseFTPURL(opts.URL)
	if err != nil {
		return nil, err
	}
	return &FTPFetcher{opts: opts, host: host, dir: dir, dial: dialFTP}, nil
}

// parseFTPURL extracts host (with port) and directory from an FTP URL. An
// empty path is the server root.
func parseFTPURL(rawURL string) (host string, dir string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", eris.New("ftp: empty host in url")
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	dir = u.Path
	if dir == "" {
		dir = "/"
	}
	return host, dir, nil
}

func dialFTP(ctx context.Context, host string, opts FTPOptions) (ftpConn, error) {
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ftp: dial")
	}

	user, pass := opts.User, opts.Password
	if user == "" {
		user, pass = "anonymous", "anonymous@"
	}
	if err := conn.Login(user, pass); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "ftp: login")
	}
	return conn, nil
}

// List returns the report files (.zip and .xlsx) in the drop directory,
// oldest first.
func (f *FTPFetcher) List(ctx context.Context) ([]RemoteFile, error) {
	conn, err := f.dial(ctx, f.host, f.opts)
	if err != nil {
		return nil, err
	}
	defer conn.Quit() //nolint:errcheck

	entries, err := conn.List(f.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: list %s", f.dir)
	}

	var files []RemoteFile
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile || !IsReportArchive(e.Name) {
			continue
		}
		files = append(files, RemoteFile{
			Name:    e.Name,
			Path:    path.Join(f.dir, e.Name),
			Size:    int64(e.Size),
			ModTime: e.Time,
		})
	}
	slices.SortFunc(files, func(a, b RemoteFile) int {
		if c := a.ModTime.Compare(b.ModTime); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	zap.L().Debug("ftp: listed report drop",
		zap.String("host", f.host),
		zap.String("dir", f.dir),
		zap.Int("files", len(files)),
	)
	return files, nil
}

// ftpConnReader closes the FTP response and the connection together.
type ftpConnReader struct {
	resp io.ReadCloser
	conn ftpConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "ftp: close response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "ftp: quit connection")
	}
	return nil
}

// Download opens one remote file on its own connection. Closing the
// reader releases the connection.
func (f *FTPFetcher) Download(ctx context.Context, rf RemoteFile) (io.ReadCloser, error) {
	conn, err := f.dial(ctx, f.host, f.opts)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ftp: retrieving", zap.String("host", f.host), zap.String("path", rf.Path))

	resp, err := conn.Retr(rf.Path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp: retrieve %s", rf.Path)
	}
	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// SyncResult counts what Sync did.
type SyncResult struct {
	Downloaded []string // local paths written
	Skipped    int      // already present with the same size
}

// Sync downloads every listed file that is missing from destDir or whose
// local size differs. Files are written under a temporary name and renamed
// so a partial download is never mistaken for a report.
func Sync(ctx context.Context, src Source, destDir string) (SyncResult, error) {
	var res SyncResult
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return res, eris.Wrap(err, "fetcher: create destination")
	}

	files, err := src.List(ctx)
	if err != nil {
		return res, err
	}

	log := zap.L().With(zap.String("component", "fetcher.sync"))
	for _, rf := range files {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		local := filepath.Join(destDir, filepath.Base(rf.Name))
		if st, err := os.Stat(local); err == nil && st.Size() == rf.Size {
			res.Skipped++
			continue
		}

		n, err := downloadTo(ctx, src, rf, local)
		if err != nil {
			return res, err
		}
		log.Info("report downloaded", zap.String("file", rf.Name), zap.Int64("bytes", n))
		res.Downloaded = append(res.Downloaded, local)
	}
	return res, nil
}

func downloadTo(ctx context.Context, src Source, rf RemoteFile, local string) (int64, error) {
	rc, err := src.Download(ctx, rf)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck

	tmp := local + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	n, err := io.Copy(out, rc)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return n, eris.Wrapf(err, "fetcher: write %s", rf.Name)
	}
	if err := os.Rename(tmp, local); err != nil {
		return n, eris.Wrap(err, "fetcher: rename download")
	}
	return n, nil
}
