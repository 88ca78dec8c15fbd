//go:build !real_waku

package transport

func newGoWakuBackend() wakuBackend {
	return nil
}
