package vision

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func encodePNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

func encodeJPEG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, img, nil)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Preprocess", func() {
	var (
		imageData   []byte
		contentType string
		result      []byte
		err         error
	)

	JustBeforeEach(func() {
		result, err = Preprocess(imageData, contentType)
	})

	When("the upload is already a PNG", func() {
		BeforeEach(func() {
			imageData = encodePNG()
			contentType = "image/png"
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should pass the data through unchanged", func() {
			Expect(result).To(Equal(imageData))
		})
	})

	When("the upload is a JPEG", func() {
		BeforeEach(func() {
			imageData = encodeJPEG()
			contentType = "image/jpeg"
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should produce decodable PNG bytes", func() {
			_, decodeErr := png.DecodeConfig(bytes.NewReader(result))
			Expect(decodeErr).NotTo(HaveOccurred())
		})
	})

	When("the content type is missing", func() {
		BeforeEach(func() {
			imageData = encodeJPEG()
			contentType = ""
		})

		It("should fall back to treating it as JPEG", func() {
			Expect(err).NotTo(HaveOccurred())
		})
	})

	When("the upload claims PNG but is corrupt", func() {
		BeforeEach(func() {
			imageData = []byte("definitely not a png")
			contentType = "image/png"
		})

		It("returns an unsupported media error", func() {
			var mediaErr *UnsupportedMediaError
			Expect(errors.As(err, &mediaErr)).To(BeTrue())
			Expect(mediaErr.MediaType).To(Equal("image/png"))
		})
	})

	When("the upload is unrecognized binary data", func() {
		BeforeEach(func() {
			imageData = []byte{0x00, 0x01, 0x02, 0x03}
			contentType = "application/octet-stream"
		})

		It("returns an unsupported media error", func() {
			var mediaErr *UnsupportedMediaError
			Expect(errors.As(err, &mediaErr)).To(BeTrue())
		})
	})

	When("the upload is a corrupt PDF", func() {
		BeforeEach(func() {
			imageData = []byte("%PDF-1.4 truncated")
			contentType = "application/pdf"
		})

		It("returns an unsupported media error", func() {
			var mediaErr *UnsupportedMediaError
			Expect(errors.As(err, &mediaErr)).To(BeTrue())
			Expect(mediaErr.MediaType).To(Equal("application/pdf"))
		})
	})
})
