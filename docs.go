/*
Package vkr is a frame-oriented rendering runtime on top of Vulkan. Instead
of recording command buffers and pipeline barriers by hand, an application
describes each frame as a graph of passes and the resources they touch, and
the runtime turns that description into ordered command buffers with the
synchronization Vulkan requires.

Vulkan leaves every hazard to the application: an image written by one pass
must be made visible, and usually transitioned to a different layout, before
the next pass may sample it, and getting one barrier wrong tends to work on
one driver and corrupt on another. The frame graph removes that class of bug
by construction. Passes declare what they read and write, the compiler walks
the declarations in order, tracks the last known stage, access and layout of
every resource, and emits exactly the barriers the declared accesses demand.
A declared access that the resource's creation usage does not cover is
rejected before anything is recorded.

The package divides into three layers.

The device layer wraps instance, physical device selection, logical device
and queue retrieval in small structs whose VK prefixed fields stay public,
so an application can always drop down to raw Vulkan calls when it needs
something the runtime does not cover. Buffers, images, samplers and
pipelines are created up front from plain description structs and addressed
afterwards through generation-checked handles, so a stale handle is an
error rather than a dangling pointer.

The bindless layer binds one large descriptor set for the whole device,
partitioned by descriptor kind. Every storage buffer, sampled image,
storage image and sampler receives a stable slot index at creation and
shaders address resources by those indices, passed in push constants or in
buffers. No per-draw descriptor sets exist anywhere in the package.

The frame layer is the graph itself. Between BeginFrame and EndFrame the
application declares transfer, compute and raster passes on a GraphBuilder,
together with transient resources that live only inside the frame. EndFrame
compiles the graph, materializes transients, records one command buffer per
run of passes on the same queue family, chains the submissions with
semaphores, and presents. Several frames are kept in flight; destruction of
anything the GPU may still read is deferred until the owning frame's fence
has signaled.

A minimal frame looks like this:

	builder, err := device.BeginFrame()
	if err != nil {
		return err
	}
	backbuffer, _ := builder.AcquireSwapchainImage()
	fb := vkr.Framebuffer{Colors: []vkr.ColorAttachment{{
		Image: backbuffer,
		Load:  vkr.LoadOpClear,
		Clear: [4]float32{0, 0, 0, 1},
	}}}
	builder.AddRasterPass("scene", fb, nil, nil, drawScene, nil)
	err = device.EndFrame(builder)

Passes run on the graphics queue unless they ask for something else.
Compute passes may prefer the async compute queue and transfer passes the
dedicated transfer copy engine; the compiler inserts queue family ownership
transfers where the declarations make them necessary, and falls back to the
graphics queue on hardware that lacks the extra families.

The runtime targets Vulkan 1.1 and uses no extensions beyond the swapchain.
*/
package vkr
