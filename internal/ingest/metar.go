package ingest

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

const metarFTPHost = "tgftp.nws.noaa.gov:21"

// METARClient retrieves the latest raw METAR for a station from the NWS
// text-product FTP mirror. The record pipeline uses it as a health probe:
// when an observation run finds nothing new, the METAR shows whether the
// station itself has gone quiet or the API feed is lagging.
type METARClient struct {
	station string
}

func NewMETARClient(station string) *METARClient {
	return &METARClient{station: station}
}

// FetchLatest returns the station's current METAR report text.
func (m *METARClient) FetchLatest() (string, error) {
	conn, err := ftp.Dial(metarFTPHost, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return "", fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return "", fmt.Errorf("ftp login: %w", err)
	}

	path := fmt.Sprintf("/data/observations/metar/stations/%s.TXT", strings.ToUpper(m.station))
	resp, err := conn.Retr(path)
	if err != nil {
		return "", fmt.Errorf("ftp retr %s: %w", path, err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	return strings.TrimSpace(string(body)), nil
}
