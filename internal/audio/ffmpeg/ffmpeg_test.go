package ffmpeg

import (
	"strings"
	"testing"
)

func TestArgs(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    string
		wantErr bool
	}{
		{
			name: "opus with bitrate",
			opts: Options{Codec: "OPUS", Channels: 1, SampleRate: 16000, BitRate: 32, Depth: 16},
			want: "-y -i in.wav -ac 1 -ar 16000 -c:a libopus -b:a 32k -sample_fmt s16 out.ogg",
		},
		{
			name: "flac has no bitrate",
			opts: Options{Codec: "flac", Depth: 24},
			want: "-y -i in.wav -ac 1 -ar 16000 -c:a flac -sample_fmt s24 out.ogg",
		},
		{
			name: "pcm skips sample format",
			opts: Options{Codec: "pcm", Channels: 2, SampleRate: 8000},
			want: "-y -i in.wav -ac 2 -ar 8000 -c:a pcm_s16le out.ogg",
		},
		{name: "unknown codec", opts: Options{Codec: "wat"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := Args(tt.opts, "in.wav", "out.ogg")
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got := strings.Join(args, " "); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
