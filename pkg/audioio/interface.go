package audioio

import (
	"io"
	"sync"
)

type OutputDevice interface {
	Play(audioOutput io.Reader) (*sync.WaitGroup, error)
	Stop() error
}
