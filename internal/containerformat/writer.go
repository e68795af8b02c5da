package containerformat

import (
	"fmt"
	"io"
)

// AppendManifest is the codec's sole entry point for writing the manifest
// and footer. Callers (the scheduler, via C7's commit path) must have
// already written every chunk record before calling this; w's current
// write position becomes the manifest offset recorded in the footer.
func AppendManifest(w io.WriteSeeker, manifest Manifest) error {
	offset, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("containerformat: determine manifest offset: %w", err)
	}

	body, err := manifest.Marshal()
	if err != nil {
		return err
	}

	if _, err := w.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("containerformat: seek to end for manifest: %w", err)
	}
	record := EncodeManifestRecord(body)
	if _, err := w.Write(record); err != nil {
		return fmt.Errorf("containerformat: write manifest: %w", err)
	}

	footer := EncodeFooter(uint64(offset))
	if _, err := w.Write(footer); err != nil {
		return fmt.Errorf("containerformat: write footer: %w", err)
	}
	return nil
}
