package evset

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

//go:generate mockgen -destination "mock_prober_test.go" -package $GOPACKAGE -write_package_comment=false github.com/sarchlab/bankprobe/evset Prober

func TestEvset(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Eviction Set Suite")
}
