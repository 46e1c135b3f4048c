package audioconv

import (
	"bytes"
	"context"
	"io"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T, fs afero.Fs, name string, rate, channels int, data []int) {
	t.Helper()
	f, err := fs.Create(name)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func TestPCM16(t *testing.T) {
	pcm := []byte{0x00, 0x40, 0x00, 0xc0, 0x00, 0x00}

	got := PCM16(pcm, DefaultSampleRate, Options{})
	assert.Equal(t, []float32{0.5, -0.5, 0}, got)

	// upsampling doubles the length
	assert.Len(t, PCM16(pcm, 8000, Options{}), 6)

	// odd trailing byte ignored
	assert.Len(t, PCM16(pcm[:5], DefaultSampleRate, Options{}), 2)
}

func TestDecodeWAVDownmixes(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeWAV(t, fs, "stereo.wav", 16000, 2, []int{16384, 0, 16384, 0, -16384, -16384})

	f, err := fs.Open("stereo.wav")
	require.NoError(t, err)
	defer f.Close()

	got, err := Decode(context.Background(), f, "stereo.wav", Options{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 0.25, got[0], 1e-6)
	assert.InDelta(t, 0.25, got[1], 1e-6)
	assert.InDelta(t, -0.5, got[2], 1e-6)
}

func TestDecodeSniffsWAV(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeWAV(t, fs, "speech", 24000, 1, []int{0, 100, 200, 300})

	f, err := fs.Open("speech")
	require.NoError(t, err)
	defer f.Close()

	got, err := Decode(context.Background(), f, "speech", Options{SampleRate: 24000, MaxSamples: 3})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestDecodeUnsupported(t *testing.T) {
	_, err := Decode(context.Background(), bytes.NewReader([]byte("plain text data")), "notes.txt", Options{})
	assert.Error(t, err)
}

func TestDecodeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Decode(ctx, bytes.NewReader(nil), "x.wav", Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want Format
	}{
		{"wav", []byte("RIFF\x00\x00\x00\x00WAVE"), FormatWAV},
		{"ogg", []byte("OggS\x00\x02"), FormatOgg},
		{"id3", []byte("ID3\x04\x00"), FormatMP3},
		{"mp3 frame", []byte{0xFF, 0xFB, 0x90, 0x64}, FormatMP3},
		{"text", []byte("hello"), FormatUnknown},
		{"short", []byte("ab"), FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader(tt.head)
			got, err := Sniff(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// rewound
			pos, _ := r.Seek(0, io.SeekCurrent)
			assert.Zero(t, pos)
		})
	}
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatWAV, FormatOf("out/Reply.WAV"))
	assert.Equal(t, FormatOgg, FormatOf("voice.opus"))
	assert.Equal(t, FormatMP3, FormatOf("beep.mp3"))
	assert.Equal(t, FormatUnknown, FormatOf("speech"))
}
