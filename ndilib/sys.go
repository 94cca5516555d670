package ndilib

import "github.com/ebitengine/purego"

// Raw mirrors of the library's C structures. Field order and types match
// the C headers exactly; instances cross the boundary by pointer only.

type sourceT struct {
	ndiName    *byte
	urlAddress *byte
}

type findCreateT struct {
	showLocalSources bool
	groups           *byte
	extraIPs         *byte
}

type recvCreateV3T struct {
	source           sourceT
	colorFormat      int32
	bandwidth        int32
	allowVideoFields bool
	recvName         *byte
}

type sendCreateT struct {
	ndiName    *byte
	groups     *byte
	clockVideo bool
	clockAudio bool
}

type tallyT struct {
	onProgram bool
	onPreview bool
}

type videoFrameV2T struct {
	xres                 int32
	yres                 int32
	fourCC               FourCC
	frameRateN           int32
	frameRateD           int32
	pictureAspectRatio   float32
	frameFormatType      int32
	timecode             int64
	data                 *byte
	lineStrideOrDataSize int32
	metadata             *byte
	timestamp            int64
}

type audioFrameV3T struct {
	sampleRate              int32
	noChannels              int32
	noSamples               int32
	timecode                int64
	fourCC                  FourCC
	data                    *byte
	channelStrideOrDataSize int32
	metadata                *byte
	timestamp               int64
}

type metadataFrameT struct {
	length   int32
	timecode int64
	data     *byte
}

type recvQueueT struct {
	videoFrames    int32
	audioFrames    int32
	metadataFrames int32
}

// Frame type discriminants returned by capture.
const (
	frameTypeNone         int32 = 0
	frameTypeVideo        int32 = 1
	frameTypeAudio        int32 = 2
	frameTypeMetadata     int32 = 3
	frameTypeError        int32 = 4
	frameTypeStatusChange int32 = 100
)

// Frame format types of a video frame.
const (
	frameFormatInterleaved int32 = 0
	frameFormatProgressive int32 = 1
	frameFormatField0      int32 = 2
	frameFormatField1      int32 = 3
)

var lib struct {
	initialize func() bool
	version    func() *byte

	findCreateV2          func(*findCreateT) uintptr
	findDestroy           func(uintptr)
	findWaitForSources    func(uintptr, uint32) bool
	findGetCurrentSources func(uintptr, *uint32) *sourceT

	recvCreateV3     func(*recvCreateV3T) uintptr
	recvDestroy      func(uintptr)
	recvCaptureV3    func(uintptr, *videoFrameV2T, *audioFrameV3T, *metadataFrameT, uint32) int32
	recvFreeVideoV2  func(uintptr, *videoFrameV2T)
	recvFreeAudioV3  func(uintptr, *audioFrameV3T)
	recvFreeMetadata func(uintptr, *metadataFrameT)
	recvSetTally     func(uintptr, *tallyT) bool
	recvSendMetadata func(uintptr, *metadataFrameT) bool
	recvGetQueue     func(uintptr, *recvQueueT)

	sendCreate      func(*sendCreateT) uintptr
	sendDestroy     func(uintptr)
	sendSendVideoV2 func(uintptr, *videoFrameV2T)
	sendSendAudioV3 func(uintptr, *audioFrameV3T)
}

func registerSymbols(handle uintptr) {
	purego.RegisterLibFunc(&lib.initialize, handle, "NDIlib_initialize")
	purego.RegisterLibFunc(&lib.version, handle, "NDIlib_version")

	purego.RegisterLibFunc(&lib.findCreateV2, handle, "NDIlib_find_create_v2")
	purego.RegisterLibFunc(&lib.findDestroy, handle, "NDIlib_find_destroy")
	purego.RegisterLibFunc(&lib.findWaitForSources, handle, "NDIlib_find_wait_for_sources")
	purego.RegisterLibFunc(&lib.findGetCurrentSources, handle, "NDIlib_find_get_current_sources")

	purego.RegisterLibFunc(&lib.recvCreateV3, handle, "NDIlib_recv_create_v3")
	purego.RegisterLibFunc(&lib.recvDestroy, handle, "NDIlib_recv_destroy")
	purego.RegisterLibFunc(&lib.recvCaptureV3, handle, "NDIlib_recv_capture_v3")
	purego.RegisterLibFunc(&lib.recvFreeVideoV2, handle, "NDIlib_recv_free_video_v2")
	purego.RegisterLibFunc(&lib.recvFreeAudioV3, handle, "NDIlib_recv_free_audio_v3")
	purego.RegisterLibFunc(&lib.recvFreeMetadata, handle, "NDIlib_recv_free_metadata")
	purego.RegisterLibFunc(&lib.recvSetTally, handle, "NDIlib_recv_set_tally")
	purego.RegisterLibFunc(&lib.recvSendMetadata, handle, "NDIlib_recv_send_metadata")
	purego.RegisterLibFunc(&lib.recvGetQueue, handle, "NDIlib_recv_get_queue")

	purego.RegisterLibFunc(&lib.sendCreate, handle, "NDIlib_send_create")
	purego.RegisterLibFunc(&lib.sendDestroy, handle, "NDIlib_send_destroy")
	purego.RegisterLibFunc(&lib.sendSendVideoV2, handle, "NDIlib_send_send_video_v2")
	purego.RegisterLibFunc(&lib.sendSendAudioV3, handle, "NDIlib_send_send_audio_v3")
}
