package task

import (
	"github.com/iostreamd/iostream/internal/pool"
	"github.com/iostreamd/iostream/internal/resolver"
)

func resolverModeReadOnly() resolver.OpenMode {
	return resolver.ModeReadOnly
}

func fakeFD() resolver.FileDescriptor {
	return resolver.FileDescriptor{DeviceID: 1, Handle: "fake"}
}

func fakeDeferredRecord() resolver.DeferredOpenRecord {
	return resolver.DeferredOpenRecord{
		Ref:  resolver.FileRef{Name: "bank.bnk"},
		Mode: resolver.ModeReadOnly,
	}
}

func fakeGranule() pool.Granule {
	p, err := pool.New(1024, 1024)
	if err != nil {
		panic(err)
	}
	g, _ := p.TryAcquire()
	return g
}
