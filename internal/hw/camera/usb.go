package camera

import (
	"context"
	"fmt"
	"time"

	"github.com/karalabe/usb"

	"github.com/cjeanneret/OpalFocus/internal/debug"
)

// USBOpener claims the camera by VID/PID with karalabe/usb.
type USBOpener struct {
	VendorID  uint16
	ProductID uint16
	IOTimeout time.Duration
}

// NewUSBOpener returns an opener for the given vendor and product IDs.
func NewUSBOpener(vendorID, productID uint16, ioTimeout time.Duration) *USBOpener {
	return &USBOpener{VendorID: vendorID, ProductID: productID, IOTimeout: ioTimeout}
}

// Open finds exactly one matching device, opens it and uploads p.
// The OS grants a single open handle per interface, so a second
// concurrent Open fails and is reported as ErrDeviceBusy.
func (o *USBOpener) Open(ctx context.Context, p *Pipeline) (Device, error) {
	if !usb.Supported() {
		return nil, ErrUnsupportedHost
	}

	infos, err := usb.Enumerate(o.VendorID, o.ProductID)
	if err != nil {
		return nil, fmt.Errorf("usb enumerate: %w", err)
	}
	switch len(infos) {
	case 0:
		return nil, fmt.Errorf("%w (VID:0x%04X PID:0x%04X)", ErrDeviceNotFound, o.VendorID, o.ProductID)
	case 1:
	default:
		return nil, fmt.Errorf("%w: %d devices match VID:0x%04X PID:0x%04X", ErrMultipleDevices, len(infos), o.VendorID, o.ProductID)
	}

	info := infos[0]
	debug.Verbose("Opening %s %s at %s", info.Manufacturer, info.Product, info.Path)
	dev, err := info.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceBusy, err)
	}

	// openLinkDevice owns dev from here and closes it on failure.
	d, err := openLinkDevice(ctx, dev, p, o.IOTimeout)
	if err != nil {
		return nil, err
	}
	return d, nil
}
