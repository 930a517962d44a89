package keys

import "testing"

func BenchmarkFor(b *testing.B) {
	b.ReportAllocs()
	var sink Namespace
	for i := 0; i < b.N; i++ {
		sink = For("default")
	}
	_ = sink
}

func BenchmarkBuilders(b *testing.B) {
	cases := []struct {
		name string
		fn   func(string) string
	}{
		{"Scheduled", Scheduled},
		{"Ready", Ready},
		{"Active", Active},
		{"JobPrefix", JobPrefix},
	}
	for _, c := range cases {
		b.Run(c.name, func(b *testing.B) {
			b.ReportAllocs()
			var s string
			for i := 0; i < b.N; i++ {
				s = c.fn("video-jobs")
			}
			_ = s
		})
	}
}
