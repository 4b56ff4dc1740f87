package attachments

import "io"

// progressReader reports bytes consumed by the blob upload as a 0-99
// percentage; the final 100 is reported once the store acknowledges.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	name   string
	report ProgressFunc
	last   int
}

func newProgressReader(r io.Reader, total int64, name string, report ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, name: name, report: report}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 && p.report != nil && p.total > 0 {
		p.read += int64(n)
		percent := int(p.read * 100 / p.total)
		if percent < 1 {
			percent = 1
		}
		if percent > 99 {
			percent = 99
		}
		if percent != p.last {
			p.last = percent
			p.report(p.name, percent)
		}
	}
	return n, err
}
