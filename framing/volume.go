package framing

import (
	"fmt"

	"github.com/fdupoux/fsarchiver-go/dico"
	"github.com/fdupoux/fsarchiver-go/errors"
)

// Dictionary keys used inside volume header and footer items.
const (
	dicoVolumeNum  uint16 = 1
	dicoArchiveID  uint16 = 2
	dicoLastVolume uint16 = 3
)

// VolumePath returns the path of volume n of an archive whose first
// volume is base. Volume 0 is base itself; later volumes replace the
// final two characters of the path with a zero-padded two-digit volume
// number, so "backup.fsa" becomes "backup.f01", "backup.f02", and so on.
func VolumePath(base string, n uint32) (string, error) {
	if n == 0 {
		return base, nil
	}
	if len(base) < 2 {
		return "", errors.E(errors.Invalid, "framing: archive path too short for volume suffix")
	}
	return base[:len(base)-2] + fmt.Sprintf("%.2d", n), nil
}

func volumeHeaderDico(volnum, archiveID uint32) *dico.Dico {
	d := dico.New()
	d.SetUint32(dicoVolumeNum, volnum)
	d.SetUint32(dicoArchiveID, archiveID)
	return d
}

func volumeFooterDico(volnum uint32, last bool) *dico.Dico {
	d := dico.New()
	d.SetUint32(dicoVolumeNum, volnum)
	var b uint8
	if last {
		b = 1
	}
	d.SetUint8(dicoLastVolume, b)
	return d
}
