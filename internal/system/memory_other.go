//go:build !linux && !darwin

package system

func readMemInfo() (*MemInfo, error) {
	return nil, ErrUnsupported
}
