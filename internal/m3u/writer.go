// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package m3u

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Write serialises channels as an extended M3U playlist. Output produced here
// round-trips through Parse.
func Write(w io.Writer, title string, channels []Channel) error {
	bw := bufio.NewWriter(w)
	if title != "" {
		fmt.Fprintf(bw, "%s x-playlist-name=\"%s\"\n", HeaderTag, sanitize(title))
	} else {
		bw.WriteString(HeaderTag + "\n")
	}
	for _, ch := range channels {
		bw.WriteString(InfoTag + "-1")
		if ch.Logo != "" {
			fmt.Fprintf(bw, ` tvg-logo="%s"`, sanitize(ch.Logo))
		}
		if ch.Group != "" {
			fmt.Fprintf(bw, ` group-title="%s"`, sanitize(ch.Group))
		}
		bw.WriteString("," + strings.TrimSpace(sanitize(ch.Name)) + "\n")
		bw.WriteString(strings.TrimSpace(ch.URL) + "\n")
	}
	return bw.Flush()
}

// sanitize keeps attribute values on one line and inside their quotes.
func sanitize(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ", `"`, "'").Replace(s)
}
